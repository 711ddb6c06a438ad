package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"pagesplit/internal/pipeline"
	"pagesplit/pkg/contract"
	"pagesplit/pkg/registry"
	"pagesplit/pkg/segmenter"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 对最小必要边界做静态校验：结构标签 → 输入根 → 组件注册 → 引擎选项。
// 所有错误均包裹 ErrInvalidConfig。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %s: %w", describe(err), contract.ErrInvalidConfig)
	}
	// "-" 不能与其他根混用
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "-" && len(cfg.Inputs) > 1 {
			return fmt.Errorf("config: '-' cannot be mixed with other roots: %w", contract.ErrInvalidConfig)
		}
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return unregistered("reader", name, registry.Names(registry.Reader))
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return unregistered("decoder", name, registry.Names(registry.Decoder))
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return unregistered("assembler", name, registry.Names(registry.Assembler))
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return unregistered("writer", name, registry.Names(registry.Writer))
	}
	return segmenter.Validate(cfg.Segmentation)
}

// describe 将校验错误压缩为单行 "字段: 标签" 列表。
func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: %s", strings.TrimPrefix(fe.Namespace(), "Config."), tag))
	}
	return strings.Join(parts, "; ")
}

func unregistered(kind, name string, known []string) error {
	return fmt.Errorf("config: %s %q not registered (known: %s): %w", kind, name, strings.Join(known, ", "), contract.ErrInvalidConfig)
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults().Components
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("reader: %w", err)
	}
	dec, err := registry.Decoder[effName(cfg.Components.Decoder, d.Decoder)](cfg.Options.Decoder)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("decoder: %w", err)
	}
	asm, err := registry.Assembler[effName(cfg.Components.Assembler, d.Assembler)](cfg.Options.Assembler)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("assembler: %w", err)
	}
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer: %w", err)
	}

	comp := pipeline.Components{Reader: r, Decoder: dec, Assembler: asm, Writer: w}
	set := pipeline.Settings{
		Inputs:       cloneStrings(cfg.Inputs),
		Concurrency:  cfg.Concurrency,
		Segmentation: cfg.Segmentation,
		Check:        cfg.Check,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
