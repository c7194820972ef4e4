// Package cli 实现 bvm 的命令行界面。
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/liangyou/bvm/internal/i18n"
	"github.com/liangyou/bvm/internal/settings"
	"github.com/liangyou/bvm/internal/tui"
	"github.com/liangyou/bvm/pkg/models"
)

// ActivationService 描述激活相关能力。
type ActivationService interface {
	tui.Controller
	Activate(ctx context.Context, path string) (models.Installation, error)
	Reverify(ctx context.Context, path string) (models.Installation, error)
	Deactivate(ctx context.Context) error
}

// RegisterService 描述登记能力。
type RegisterService interface {
	Add(ctx context.Context, path string) (models.Installation, error)
}

// ListService 描述查询能力。
type ListService interface {
	Installations(ctx context.Context) ([]models.Installation, error)
	Active(ctx context.Context) (*models.Installation, error)
}

// RemoveService 描述移除能力。
type RemoveService interface {
	Remove(ctx context.Context, path string, force bool) ([]models.Installation, error)
}

// RevealService 描述在文件管理器中打开目录的能力。
type RevealService interface {
	Reveal(ctx context.Context, path string) error
}

// Services 是命令执行所需的全部依赖。
type Services struct {
	Activation ActivationService
	Registrar  RegisterService
	Lister     ListService
	Remover    RemoveService
	Revealer   RevealService
	Settings   settings.Store
	Close      func() error
}

// Options 是全局命令行参数。
type Options struct {
	ConfigPath string
	Debug      bool
}

// Bootstrap 按全局参数构建依赖，在需要依赖的命令执行前调用一次。
type Bootstrap func(ctx context.Context, opts Options) (*Services, error)

// App 负责 CLI 命令解析与分发。
type App struct {
	out       io.Writer
	boot      Bootstrap
	version   string
	picker    Picker
	confirmer Confirmer
	notifier  Notifier
	runUI     func(ctx context.Context, ctrl tui.Controller, lang string) error

	opts Options
	svc  *Services
}

// NewApp 创建 CLI 应用实例。
func NewApp(out io.Writer, in io.Reader, boot Bootstrap, version string) *App {
	if out == nil {
		out = os.Stdout
	}
	if in == nil {
		in = os.Stdin
	}
	prompt := NewPrompt(in, out)
	return &App{
		out:       out,
		boot:      boot,
		version:   version,
		picker:    prompt,
		confirmer: prompt,
		notifier:  NewColorNotifier(out, !color.NoColor),
		runUI: func(ctx context.Context, ctrl tui.Controller, lang string) error {
			return tui.Run(ctx, ctrl, lang)
		},
	}
}

// Run 解析参数并执行命令。错误已通过 Notifier 报告，调用方只需决定退出码。
func (a *App) Run(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.out)

	err := root.ExecuteContext(ctx)
	if a.svc != nil && a.svc.Close != nil {
		if cerr := a.svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		severity, message := describeError(a.lang(), err)
		a.notifier.Notify(severity, message)
	}
	return err
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "bvm",
		Short: "bvm - Blender version manager",
		Long: `bvm registers local Blender installations, verifies them by running
"<path> -b --factory-startup" and keeps exactly one of them active.`,
		Version:       a.version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoBoot] == "true" || cmd.Name() == "help" {
				return nil
			}
			return a.ensureServices(cmd.Context())
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nPlatform: %s/%s\n", runtime.GOOS, runtime.GOARCH))

	root.PersistentFlags().StringVar(&a.opts.ConfigPath, "config", "", "config file path (default $BVM_CONFIG or ~/.bvm/config.yaml)")
	root.PersistentFlags().BoolVar(&a.opts.Debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.addCommand(),
		a.listCommand(),
		a.activateCommand(),
		a.deactivateCommand(),
		a.verifyCommand(),
		a.removeCommand(),
		a.currentCommand(),
		a.revealCommand(),
		a.langCommand(),
		a.uiCommand(),
		a.versionCommand(),
	)
	return root
}

const annotationNoBoot = "bvm/no-boot"

func (a *App) ensureServices(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}
	if a.boot == nil {
		return fmt.Errorf("cli: no bootstrap configured")
	}
	svc, err := a.boot(ctx, a.opts)
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}

func (a *App) lang() string {
	if a.svc == nil || a.svc.Settings == nil {
		return i18n.EnUS
	}
	return i18n.Normalize(a.svc.Settings.Get(settings.KeyLanguage))
}

func (a *App) notify(severity Severity, text string) {
	a.notifier.Notify(severity, i18n.T(a.lang(), text))
}

func (a *App) notifyf(severity Severity, format string, args ...any) {
	a.notifier.Notify(severity, i18n.Tf(a.lang(), format, args...))
}
