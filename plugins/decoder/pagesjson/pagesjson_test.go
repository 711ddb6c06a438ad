package pagesjson

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagesplit/pkg/contract"
)

func decode(t *testing.T, opts, src string) ([]contract.Page, error) {
	t.Helper()
	d, err := New([]byte(opts))
	require.NoError(t, err)
	return d.Decode(context.Background(), "book", strings.NewReader(src))
}

// TestDecodeFormats 三种输入格式（自动识别）得到相同页序列
func TestDecodeFormats(t *testing.T) {
	want := []contract.Page{{ID: 3, Content: "أ"}, {ID: 1, Content: "ب"}}
	for name, src := range map[string]string{
		"array":  `[{"id":3,"content":"أ"},{"id":1,"content":"ب"}]`,
		"object": `{"pages":[{"id":3,"content":"أ"},{"id":1,"content":"ب"}],"title":"x"}`,
		"jsonl":  "{\"id\":3,\"content\":\"أ\"}\n\n{\"id\":1,\"content\":\"ب\"}\n",
		"bom":    "\xef\xbb\xbf[{\"id\":3,\"content\":\"أ\"},{\"id\":1,\"content\":\"ب\"}]",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := decode(t, "", src)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

// TestDecodeSinglePageLine 单行 JSONL（无 pages 键）视为一页
func TestDecodeSinglePageLine(t *testing.T) {
	got, err := decode(t, "", `{"id":7,"content":"x","part":2}`)
	require.NoError(t, err)
	assert.Equal(t, []contract.Page{{ID: 7, Content: "x"}}, got)
}

// TestDecodeForcedFormat 显式格式
func TestDecodeForcedFormat(t *testing.T) {
	_, err := decode(t, `{"format":"array"}`, `{"id":1,"content":"x"}`)
	assert.ErrorIs(t, err, contract.ErrDecode)

	got, err := decode(t, `{"format":"object"}`, `{"pages":[]}`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestDecodeErrors 缺字段、重复 ID、严格模式、非法 UTF-8
func TestDecodeErrors(t *testing.T) {
	cases := map[string]struct{ opts, src string }{
		"缺 content": {"", `[{"id":1}]`},
		"缺 id":      {"", `[{"content":"x"}]`},
		"重复 id":     {"", `[{"id":1,"content":"a"},{"id":1,"content":"b"}]`},
		"严格未知字段":    {`{"strict":true}`, `[{"id":1,"content":"a","part":1}]`},
		"坏 JSONL":   {"", "{\"id\":1,\"content\":\"a\"}\n{oops"},
		"非法 UTF-8":  {"", "[{\"id\":1,\"content\":\"\xff\"}]"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, c.opts, c.src)
			assert.ErrorIs(t, err, contract.ErrDecode)
		})
	}

	got, err := decode(t, `{"allow_duplicate_ids":true}`, `[{"id":1,"content":"a"},{"id":1,"content":"b"}]`)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// TestDecodeEmpty 空输入无页
func TestDecodeEmpty(t *testing.T) {
	got, err := decode(t, "", "  \n")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestNewOptions 选项严格解析
func TestNewOptions(t *testing.T) {
	_, err := New([]byte(`{"format":"xml"}`))
	assert.ErrorIs(t, err, contract.ErrInvalidConfig)
	_, err = New([]byte(`{"unknown":1}`))
	assert.ErrorIs(t, err, contract.ErrInvalidConfig)
	_, err = New(nil)
	assert.NoError(t, err)
}

// TestDecodeCanceled 已取消的 ctx
func TestDecodeCanceled(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Decode(ctx, "b", strings.NewReader(`[]`))
	assert.ErrorIs(t, err, context.Canceled)
}
