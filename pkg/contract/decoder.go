package contract

import (
	"context"
	"io"
)

// Decoder: 将单个书目的字节流解码为有序 []Page。
// 约束：
// 1) 保持输入顺序（即拼接顺序）；
// 2) 仅做 CRLF→LF 之外的最小必要解析，不清洗正文；
// 3) 无内部并发、幂等；
// 4) 格式错误返回包裹 ErrDecode 的错误。
type Decoder interface {
	Decode(ctx context.Context, bookID BookID, r io.Reader) ([]Page, error)
}
