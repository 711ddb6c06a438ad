// Package pagesjson 将 JSON 页数据解码为 []Page。
// 支持三种输入：页数组 [{id,content}]、对象 {"pages":[...]}、JSONL（每行一页）。
package pagesjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"pagesplit/pkg/contract"
)

// 输入格式。
const (
	FormatAuto   = "auto"
	FormatArray  = "array"
	FormatObject = "object"
	FormatJSONL  = "jsonl"
)

// Options: 解码选项。
type Options struct {
	// Format: auto（默认）/array/object/jsonl。
	Format string `json:"format"`
	// Strict: 页对象出现未知字段时失败；默认忽略（导出数据常带额外字段）。
	Strict bool `json:"strict"`
	// AllowDuplicateIDs: 允许重复页 ID（引擎按首次出现索引）。
	AllowDuplicateIDs bool `json:"allow_duplicate_ids"`
}

type decoder struct{ opts Options }

var _ contract.Decoder = (*decoder)(nil)

// New 从原样 JSON Options 创建解码器（严格解析选项）。
func New(raw json.RawMessage) (contract.Decoder, error) {
	var opts Options
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("pagesjson options: %v: %w", err, contract.ErrInvalidConfig)
		}
	}
	switch opts.Format {
	case "":
		opts.Format = FormatAuto
	case FormatAuto, FormatArray, FormatObject, FormatJSONL:
	default:
		return nil, fmt.Errorf("pagesjson: unknown format %q: %w", opts.Format, contract.ErrInvalidConfig)
	}
	return &decoder{opts: opts}, nil
}

type page struct {
	ID      *int    `json:"id"`
	Content *string `json:"content"`
}

// Decode 读取全部输入并按声明顺序返回页。
func (d *decoder) Decode(ctx context.Context, bookID contract.BookID, r io.Reader) ([]contract.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: invalid UTF-8: %w", bookID, contract.ErrDecode)
	}
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\xef\xbb\xbf"))
	if len(data) == 0 {
		return nil, nil
	}
	format := d.opts.Format
	if format == FormatAuto {
		format = sniff(data)
	}
	var raws []json.RawMessage
	switch format {
	case FormatArray:
		err = json.Unmarshal(data, &raws)
	case FormatObject:
		var obj struct {
			Pages []json.RawMessage `json:"pages"`
		}
		err = json.Unmarshal(data, &obj)
		raws = obj.Pages
	default:
		raws, err = stream(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", bookID, err, contract.ErrDecode)
	}
	return d.pages(ctx, bookID, raws)
}

// sniff 判定输入格式：'[' 为数组；单个含 "pages" 的对象为 object；其余按 JSONL。
func sniff(data []byte) string {
	if data[0] == '[' {
		return FormatArray
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var first map[string]json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return FormatJSONL
	}
	if _, ok := first["pages"]; ok && !dec.More() {
		return FormatObject
	}
	return FormatJSONL
}

// stream 解码连续的 JSON 值（JSONL 或任意空白分隔）。
func stream(data []byte) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var out []json.RawMessage
	for {
		var v json.RawMessage
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %v", len(out)+1, err)
		}
		out = append(out, v)
	}
}

func (d *decoder) pages(ctx context.Context, bookID contract.BookID, raws []json.RawMessage) ([]contract.Page, error) {
	out := make([]contract.Page, 0, len(raws))
	seen := make(map[int]struct{}, len(raws))
	for i, raw := range raws {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var p page
		dec := json.NewDecoder(bytes.NewReader(raw))
		if d.opts.Strict {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("%s: page %d: %v: %w", bookID, i, err, contract.ErrDecode)
		}
		if p.ID == nil || p.Content == nil {
			return nil, fmt.Errorf("%s: page %d: id and content are required: %w", bookID, i, contract.ErrDecode)
		}
		if _, dup := seen[*p.ID]; dup && !d.opts.AllowDuplicateIDs {
			return nil, fmt.Errorf("%s: page %d: duplicate id %d: %w", bookID, i, *p.ID, contract.ErrDecode)
		}
		seen[*p.ID] = struct{}{}
		out = append(out, contract.Page{ID: *p.ID, Content: *p.Content})
	}
	return out, nil
}
