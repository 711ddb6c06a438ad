package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"pagesplit/pkg/contract"
)

// EnvPrefix: 环境变量前缀。
const EnvPrefix = "PAGESPLIT_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Components: Components{
			Reader:    "fs",
			Decoder:   "pagesjson",
			Assembler: "linear",
			Writer:    "fs",
		},
	}
}

// Load 从文件路径解析 Config；.yaml/.yml 先经 YAMLToJSON 转换，其余按 JSON。
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(raw)
	default:
		return LoadJSON("", raw)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	switch {
	case len(raw) > 0:
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		raw = b
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %v: %w", err, contract.ErrInvalidConfig)
	}
	return cfg, nil
}

// LoadYAML 将 YAML 转为 JSON 后按 LoadJSON 的严格规则解析。
func LoadYAML(raw []byte) (Config, error) {
	js, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: yaml: %v: %w", err, contract.ErrInvalidConfig)
	}
	if len(bytes.TrimSpace(js)) == 0 || string(bytes.TrimSpace(js)) == "null" {
		return Config{}, nil
	}
	return LoadJSON("", js)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if over.Check {
		out.Check = true
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Assembler != "" {
		out.Components.Assembler = over.Components.Assembler
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Assembler) > 0 {
		out.Options.Assembler = cloneRaw(over.Options.Assembler)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}

	out.Segmentation = mergeSegmentation(out.Segmentation, over.Segmentation)
	return out
}

// mergeSegmentation: 列表字段整体替换；MaxPages 为指针，nil 表示未覆盖。
func mergeSegmentation(base, over contract.Options) contract.Options {
	out := base
	if len(over.Rules) > 0 {
		out.Rules = over.Rules
	}
	if over.MaxPages != nil {
		out.MaxPages = contract.Int(*over.MaxPages)
	}
	if over.MaxContentLength != 0 {
		out.MaxContentLength = over.MaxContentLength
	}
	if len(over.Breakpoints) > 0 {
		out.Breakpoints = over.Breakpoints
	}
	if over.Prefer != "" {
		out.Prefer = over.Prefer
	}
	if over.PageJoiner != "" {
		out.PageJoiner = over.PageJoiner
	}
	if len(over.Preprocess) > 0 {
		out.Preprocess = over.Preprocess
	}
	if len(over.Replace) > 0 {
		out.Replace = over.Replace
	}
	if over.Debug {
		out.Debug = true
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 PAGESPLIT_；集合之外的键忽略；数值解析失败返回 ErrInvalidConfig。
// 支持：INPUTS, CONCURRENCY, LOG_LEVEL, CHECK, COMPONENTS_*, MAX_PAGES,
// MAX_CONTENT_LENGTH, PREFER, PAGE_JOINER, DEBUG, RULES_JSON, BREAKPOINTS_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		var err error
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "CONCURRENCY":
			over.Concurrency, err = atoi(val)
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "CHECK":
			over.Check, err = strconv.ParseBool(val)
		case "COMPONENTS_READER":
			over.Components.Reader = val
		case "COMPONENTS_DECODER":
			over.Components.Decoder = val
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = val
		case "COMPONENTS_WRITER":
			over.Components.Writer = val
		case "MAX_PAGES":
			var v int
			if v, err = atoi(val); err == nil {
				over.Segmentation.MaxPages = contract.Int(v)
			}
		case "MAX_CONTENT_LENGTH":
			over.Segmentation.MaxContentLength, err = atoi(val)
		case "PREFER":
			over.Segmentation.Prefer = contract.Prefer(val)
		case "PAGE_JOINER":
			over.Segmentation.PageJoiner = contract.PageJoiner(val)
		case "DEBUG":
			over.Segmentation.Debug, err = strconv.ParseBool(val)
		case "RULES_JSON":
			err = json.Unmarshal([]byte(val), &over.Segmentation.Rules)
		case "BREAKPOINTS_JSON":
			err = json.Unmarshal([]byte(val), &over.Segmentation.Breakpoints)
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: env %s%s: %v: %w", EnvPrefix, key, err, contract.ErrInvalidConfig)
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
