package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"bookchop/internal/config"
	"bookchop/internal/diag"
	"bookchop/internal/pipeline"
)

var (
	chopRun       = pipeline.Chop
	reassembleRun = pipeline.Reassemble
	newLogger     = diag.NewLogger
)

// 退出码：0 成功；1 运行期失败或不变量违例；2 用法错误；3 配置错误。
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
	exitConfig  = 3
)

// exitError 携带退出码与面向用户的提示前缀。
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(msg string, err error) error { return &exitError{code: exitConfig, msg: msg, err: err} }
func runtimeErr(msg string, err error) error { return &exitError{code: exitRuntime, msg: msg, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	status      bool
	metricsFile string
}

func run(ctx context.Context, args []string, fsys afero.Fs, stdout, stderr io.Writer) int {
	a := &app{fs: fsys, stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !errors.Is(ee.err, context.Canceled) {
			fprintf(stderr, "%s: %v\n", ee.msg, ee.err)
		}
		return ee.code
	}
	// 参数个数、未知旗标或子命令
	fprintf(stderr, "错误: %v\n\n%s", err, cmd.UsageString())
	return exitUsage
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookchop",
		Short:         "按章节与段落切分长文本，并将改写后的块合并为 HTML",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./config.json 或 ./bookchop.yaml（若存在）")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&a.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "运行结束后写出 Prometheus 文本格式指标")
	root.AddCommand(a.chopCmd(), a.reassembleCmd(), a.initConfigCmd())
	return root
}

func (a *app) chopCmd() *cobra.Command {
	var (
		size, minWords                   int
		outDir, policy, counter, tplPath string
	)
	cmd := &cobra.Command{
		Use:   "chop [flags] [file|dir|glob|-]...",
		Short: "将输入切分为带序号的块文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			var over config.Config
			f := cmd.Flags()
			if len(args) > 0 {
				over.Chop.Inputs = args
			}
			if f.Changed("size") {
				over.Chop.ChunkSizeWords = &size
			}
			if f.Changed("min") {
				over.Chop.MinWordsToEmit = &minWords
			}
			if f.Changed("output-dir") {
				over.Chop.OutputDir = outDir
			}
			if f.Changed("policy") {
				over.Components.Policy = policy
			}
			if f.Changed("counter") {
				over.Components.Counter = counter
			}
			if f.Changed("template") {
				raw, err := json.Marshal(map[string]string{"template_path": tplPath})
				if err != nil {
					return configErr("模板参数无效", err)
				}
				over.Components.Template = "rewrite"
				over.Options.Template = raw
			}
			cfg, err := a.loadConfig(over)
			if err != nil {
				return err
			}
			comp, set, err := config.AssembleChop(cfg, a.fs)
			if err != nil {
				return configErr("装配失败", err)
			}
			return a.execute(cfg, "chop", func(logger *diag.Logger, term *diag.Terminal) (pipeline.Report, error) {
				return chopRun(cmd.Context(), comp, set, logger, term)
			})
		},
	}
	f := cmd.Flags()
	f.IntVarP(&size, "size", "s", 1200, "单块目标词数上限")
	f.IntVarP(&minWords, "min", "x", 100, "非末块的最小词数；0 关闭抑制")
	f.StringVarP(&outDir, "output-dir", "o", ".", "块文件输出目录")
	f.StringVarP(&policy, "policy", "c", "gutenberg", "边界策略 gutenberg|markdown")
	f.StringVar(&counter, "counter", "fields", "词数估计 fields|uax29|tiktoken")
	f.StringVarP(&tplPath, "template", "t", "", "包装模板文件（含 {CHOPPER_CONTENT} 占位符）")
	return cmd
}

func (a *app) reassembleCmd() *cobra.Command {
	var chunkDir, suffix, prefixDir, layout, title string
	cmd := &cobra.Command{
		Use:   "reassemble [flags] <output.book.html>",
		Short: "将处理后的块文件合并为单个 HTML 文档",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var over config.Config
			f := cmd.Flags()
			if f.Changed("chunk-dir") {
				over.Reassemble.ChunkDir = chunkDir
			}
			if f.Changed("suffix") {
				over.Reassemble.Suffix = suffix
			}
			if f.Changed("prefix-dir") {
				over.Reassemble.PrefixDir = prefixDir
			}
			if f.Changed("layout") {
				over.Reassemble.LayoutPath = layout
			}
			if f.Changed("title") {
				over.Reassemble.Title = title
			}
			cfg, err := a.loadConfig(over)
			if err != nil {
				return err
			}
			rs, w, set, err := config.AssembleReassemble(cfg, a.fs, args[0])
			if err != nil {
				return configErr("装配失败", err)
			}
			return a.execute(cfg, "reassemble", func(logger *diag.Logger, term *diag.Terminal) (pipeline.Report, error) {
				return reassembleRun(cmd.Context(), rs, w, set, logger, term)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&chunkDir, "chunk-dir", "d", "outputs/", "处理后块文件所在目录")
	f.StringVar(&suffix, "suffix", ".out", "处理后块文件后缀")
	f.StringVar(&prefixDir, "prefix-dir", ".", "<book>.prefix 所在目录")
	f.StringVar(&layout, "layout", "", "自定义 HTML 布局模板（text/template + sprig）")
	f.StringVar(&title, "title", "", "文档标题（缺省为书名）")
	return cmd
}

func (a *app) initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成 config.json 与 .env 模板（已存在则跳过，不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			written, err := config.WriteTemplates(a.fs, dir)
			if err != nil {
				return configErr("生成默认配置失败", err)
			}
			for _, p := range written {
				fmt.Fprintln(a.stdout, p)
			}
			if len(written) == 0 {
				fprintf(a.stderr, "提示：%s 下的配置模板均已存在，未覆盖\n", dir)
			}
			return nil
		},
	}
}

// loadConfig: 默认值 → 配置文件 → ENV（含 .env）→ CLI，随后统一校验。
func (a *app) loadConfig(cli config.Config) (config.Config, error) {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := config.LoadDotEnv(".env"); err != nil {
		return config.Config{}, configErr("环境变量解析失败", err)
	}
	cfg := config.Defaults()

	path := a.configPath
	if path == "" {
		path = strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG_FILE"))
	}
	if path == "" {
		for _, p := range []string{"config.json", "bookchop.yaml", "bookchop.yml"} {
			if ok, _ := afero.Exists(a.fs, p); ok {
				path = p
				break
			}
		}
	}
	if path != "" {
		fileCfg, err := config.LoadFile(a.fs, path)
		if err != nil {
			return cfg, configErr("配置解析失败", err)
		}
		if cfg, err = config.Merge(cfg, fileCfg); err != nil {
			return cfg, configErr("配置合并失败", err)
		}
	}

	envCfg, err := config.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败", err)
	}
	if cfg, err = config.Merge(cfg, envCfg); err != nil {
		return cfg, configErr("配置合并失败", err)
	}

	if a.logLevel != "" {
		cli.Logging.Level = a.logLevel
	}
	if cfg, err = config.Merge(cfg, cli); err != nil {
		return cfg, configErr("配置合并失败", err)
	}

	if err := config.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		dumpConfig(a.stderr, cfg)
		return cfg, configErr("配置校验失败", err)
	}
	return cfg, nil
}

// execute 建立日志与终端提示，运行 fn，并按需写出指标。
func (a *app) execute(cfg config.Config, op string, fn func(*diag.Logger, *diag.Terminal) (pipeline.Report, error)) error {
	start := time.Now()
	logger := newLogger(diag.NewCorrID(), cfg.Logging.Level)
	defer logger.Close()
	logger.DebugStart("config", "effective", "", diag.KV(
		"op", op,
		"inputs_count", len(cfg.Chop.Inputs),
		"output_dir", cfg.Chop.OutputDir,
		"chunk_dir", cfg.Reassemble.ChunkDir,
		"reader", cfg.Components.Reader,
		"writer", cfg.Components.Writer,
		"policy", cfg.Components.Policy,
		"counter", cfg.Components.Counter,
		"template", cfg.Components.Template,
	))

	term := diag.NewTerminal(a.stderr, a.status)
	rep, err := fn(logger, term)
	if !a.status {
		// 诊断总是可见
		for _, f := range rep.Findings {
			fprintf(a.stderr, "[warn] %s | %s\n", f.File, f.Msg)
		}
	}
	if a.metricsFile != "" {
		if merr := diag.WriteMetrics(a.metricsFile); merr != nil {
			fprintf(a.stderr, "提示：指标写出失败（已跳过）：%v\n", merr)
		}
	}
	if err != nil {
		logger.Error("main", string(diag.Classify(err)), "first error", &start)
		return runtimeErr("运行失败", err)
	}
	logger.InfoFinish("main", op+" done", start, int64(rep.Chunks))
	return nil
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c config.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fprintf(w, "有效配置:\n%s\n", b)
}
