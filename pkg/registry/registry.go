package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"pagesplit/pkg/contract"
	linear "pagesplit/plugins/assembler/linear"
	pjson "pagesplit/plugins/decoder/pagesjson"
	ptext "pagesplit/plugins/decoder/pagetext"
	rfs "pagesplit/plugins/reader/filesystem"
	wfs "pagesplit/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%v: %w", err, contract.ErrInvalidConfig)
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// pagesjson: 页数组 / {"pages":[...]} / JSONL
	"pagesjson": func(raw json.RawMessage) (contract.Decoder, error) { return pjson.New(raw) },
	// pagetext: 纯文本，按换页符或页标记行分页
	"pagetext": func(raw json.RawMessage) (contract.Decoder, error) { return ptext.New(raw) },
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// linear: 校验段序后编码为 jsonl/json/text
	"linear": func(raw json.RawMessage) (contract.Assembler, error) { return linear.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		w, err := wfs.New(&opts)
		if err != nil {
			return nil, fmt.Errorf("writer fs: %v: %w", err, contract.ErrInvalidConfig)
		}
		return w, nil
	},
}

// Names 返回注册表中按字典序排列的名称（用于错误提示）。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
