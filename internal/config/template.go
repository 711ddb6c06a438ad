package config

import (
	"encoding/json"

	"pagesplit/pkg/contract"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 默认输入为 STDIN（"-"），Writer 输出到 ./out 目录；
// - 组件名采用仓库内置实现，选项包含全部键；
// - 分段示例：章节标题行切分，超长段按句末标点回退。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Inputs:      []string{"-"},
		Concurrency: d.Concurrency,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
		Segmentation: contract.Options{
			Rules: []contract.SplitRule{
				{LineStartsWith: []string{"{{kitab}}"}, Meta: contract.Meta{"type": "book"}},
				{LineStartsWith: []string{"{{bab}}"}, Meta: contract.Meta{"type": "chapter"}},
			},
			MaxPages:         contract.Int(1),
			MaxContentLength: 3000,
			Breakpoints: []contract.Breakpoint{
				{Pattern: "{{tarqim}}\\s*"},
				{},
			},
			Preprocess: []contract.PreprocessStep{
				{Type: contract.StepRemoveZeroWidth},
				{Type: contract.StepNFC},
			},
		},
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [".git", "node_modules", "vendor"],
  "allow_exts": [".json", ".jsonl", ".txt", ".md"]
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "format": "auto",
  "strict": false,
  "allow_duplicate_ids": false
}`)
	cfg.Options.Assembler = json.RawMessage(`{
  "format": "jsonl",
  "indent": "",
  "meta": true,
  "debug": true
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "atomic": true,
  "flat": true,
  "ext": ".jsonl",
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
