package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "pagesplit/internal/config"
	"pagesplit/internal/diag"
	"pagesplit/internal/pipeline"
	"pagesplit/pkg/contract"
)

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// exitError 携带退出码的错误；消息已由调用处输出。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// flags: CLI 旗标（仅在显式设置时覆盖配置）。
type flags struct {
	config           string
	envFile          string
	initDir          string
	concurrency      int
	maxPages         int
	maxContentLength int
	prefer           string
	pageJoiner       string
	logLevel         string
	debug            bool
	check            bool
	status           bool
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// 旗标解析等 cobra 自身错误
	fprintf(stderr, "参数错误: %v\n", err)
	return exitConfig
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "pagesplit [roots...]",
		Short: "将分页阿拉伯文书籍按结构规则与长度预算切分为段",
		Long: "pagesplit 读取文件/目录（或 \"-\" 表示 STDIN）中的书籍页，按配置的结构规则切分，\n" +
			"对超出页跨度或长度预算的段按断点细分，并将结果写入输出目录。",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, roots []string) error {
			return execute(cmd, f, roots)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.yaml 或 ./config.json（若存在）")
	fl.StringVar(&f.envFile, "env-file", ".env", "环境变量文件（不覆盖已有 ENV）")
	fl.StringVar(&f.initDir, "init-config", "", "在指定目录生成默认配置 config.json 和 .env 模板（已存在则跳过）")
	fl.IntVar(&f.concurrency, "concurrency", 0, "书目并发度（覆盖配置）")
	fl.IntVar(&f.maxPages, "max-pages", 0, "段最大页 ID 跨度（覆盖配置；0 表示单页）")
	fl.IntVar(&f.maxContentLength, "max-content-length", 0, "段最大长度（字符，>=50；覆盖配置）")
	fl.StringVar(&f.prefer, "prefer", "", "断点窗口选择策略：longer|shorter")
	fl.StringVar(&f.pageJoiner, "page-joiner", "", "多页段内页分隔：space|newline")
	fl.StringVar(&f.logLevel, "log-level", "", "日志等级：trace|debug|info|warn|error")
	fl.BoolVar(&f.debug, "debug", false, "为每个段写入来源信息")
	fl.BoolVar(&f.check, "check", false, "写出前校验段并记录问题")
	fl.BoolVar(&f.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	return cmd
}

func execute(cmd *cobra.Command, f flags, roots []string) error {
	start := time.Now()
	stderr := cmd.ErrOrStderr()
	fail := func(code int, msg string, err error) error {
		fprintf(stderr, "%s: %v\n", msg, err)
		return &exitError{code: code, err: err}
	}

	// 在任何 ENV 读取前加载 env 文件；显式指定时文件必须存在。
	if err := godotenv.Load(f.envFile); err != nil {
		if cmd.Flags().Changed("env-file") || !errors.Is(err, os.ErrNotExist) {
			return fail(exitConfig, "环境变量文件加载失败", err)
		}
	}

	if f.initDir != "" {
		if err := initConfig(f.initDir); err != nil {
			return fail(exitConfig, "生成默认配置失败", err)
		}
		return nil
	}

	cfg, err := loadConfig(cmd, f, roots)
	if err != nil {
		return fail(exitConfig, "配置解析失败", err)
	}
	if err := cfgpkg.Validate(cfg); err != nil {
		_ = dumpConfig(stderr, cfg)
		return fail(exitConfig, "配置校验失败", err)
	}

	level := strings.TrimSpace(cfg.Logging.Level)
	zerolog.SetGlobalLevel(diag.ParseLevel(level))
	logger := diag.NewLogger(genCorrID(), level)
	defer logger.Close()

	if err := preflightCheckOutputDir(cfg); err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "preflight failed", &start)
		return fail(exitConfig, "输出目录不可写或无法创建", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "assemble failed", &start)
		return fail(exitConfig, "装配失败", err)
	}

	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(cfg.Concurrency, len(cfg.Inputs))

	logger.Debug("config", "effective", map[string]string{
		"inputs_count":       strconv.Itoa(len(cfg.Inputs)),
		"concurrency":        strconv.Itoa(cfg.Concurrency),
		"reader":             cfg.Components.Reader,
		"decoder":            cfg.Components.Decoder,
		"assembler":          cfg.Components.Assembler,
		"writer":             cfg.Components.Writer,
		"rules":              strconv.Itoa(len(cfg.Segmentation.Rules)),
		"breakpoints":        strconv.Itoa(len(cfg.Segmentation.Breakpoints)),
		"max_content_length": strconv.Itoa(cfg.Segmentation.MaxContentLength),
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	t := logger.Start("pipeline", "run")
	if err := pipelineRun(ctx, comp, set, logger); err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		diag.IncOp("pipeline", "run", "error")
		if code != diag.CodeUnknown {
			diag.IncError("pipeline", string(code))
		}
		term.RunFinish(false, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return &exitError{code: exitRuntime, err: err}
		}
		return fail(exitRuntime, "运行失败", err)
	}
	t.Finish("run", 0)
	diag.IncOp("pipeline", "run", "success")
	diag.ObserveDuration("pipeline", "run", time.Since(start).Milliseconds())
	logger.Debug("metrics", "snapshot", diag.Snapshot().Flat())
	term.RunFinish(true, time.Since(start))
	return nil
}

// loadConfig 按优先级合并：Defaults < 配置文件 < ENV < CLI。
func loadConfig(cmd *cobra.Command, f flags, roots []string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	path := f.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		base, err := cfgpkg.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	over, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, over)

	var cli cfgpkg.Config
	fl := cmd.Flags()
	if len(roots) > 0 {
		cli.Inputs = roots
	}
	if fl.Changed("concurrency") {
		if f.concurrency < 1 {
			return cfg, fmt.Errorf("--concurrency must be >= 1: %w", contract.ErrInvalidConfig)
		}
		cli.Concurrency = f.concurrency
	}
	if fl.Changed("max-pages") {
		cli.Segmentation.MaxPages = contract.Int(f.maxPages)
	}
	if fl.Changed("max-content-length") {
		cli.Segmentation.MaxContentLength = f.maxContentLength
	}
	cli.Segmentation.Prefer = contract.Prefer(f.prefer)
	cli.Segmentation.PageJoiner = contract.PageJoiner(f.pageJoiner)
	cli.Segmentation.Debug = f.debug
	cli.Check = f.check
	cli.Logging.Level = f.logLevel
	return cfgpkg.Merge(cfg, cli), nil
}

// defaultConfigPath 返回工作目录下首个存在的默认配置文件。
func defaultConfigPath() string {
	for _, p := range []string{"config.yaml", "config.yml", "config.json"} {
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = w.Write(append([]byte("有效配置:\n"), b...))
	_, _ = w.Write([]byte("\n"))
	return nil
}

func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "config.json"), cfgpkg.DefaultTemplateConfig()); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return writeDotEnv(filepath.Join(dir, ".env"))
}

// writeConfig 写出配置；已存在时返回 os.ErrExist（不覆盖）。
func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

func genCorrID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(b[:])
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	keys := []string{
		"CONFIG_FILE", "INPUTS", "CONCURRENCY", "LOG_LEVEL", "CHECK",
		"COMPONENTS_READER", "COMPONENTS_DECODER", "COMPONENTS_ASSEMBLER", "COMPONENTS_WRITER",
		"MAX_PAGES", "MAX_CONTENT_LENGTH", "PREFER", "PAGE_JOINER", "DEBUG",
		"RULES_JSON", "BREAKPOINTS_JSON",
	}
	var b strings.Builder
	b.WriteString("# pagesplit .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")
	for _, k := range keys {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightCheckOutputDir: 当 Writer 使用文件系统实现(fs)时，启动前检查输出目录可写性。
// - 目录已存在：尝试创建并删除临时文件；
// - 目录不存在：检查父目录可写（尝试创建并删除临时目录）。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	name := strings.TrimSpace(cfg.Components.Writer)
	if name == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时由装配阶段按实现报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil {
		if !st.IsDir() {
			return fmt.Errorf("路径存在但不是目录: %s", dir)
		}
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
