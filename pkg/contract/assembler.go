package contract

import (
	"context"
	"io"
)

// Assembler: 将单个书目的 []Segment 编码为最终输出字节。
// 约束：
//  1. 仅处理同一 BookID 的段；
//  2. 段按 From 非降序排列（违例返回 ErrSeqInvalid）；
//  3. 不引入跨书目状态。
type Assembler interface {
	Assemble(ctx context.Context, bookID BookID, segments []Segment) (io.Reader, error)
}
