package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/liangyou/bvm/internal/i18n"
	"github.com/liangyou/bvm/internal/installation"
	"github.com/liangyou/bvm/internal/settings"
	"github.com/liangyou/bvm/internal/tui"
	"github.com/liangyou/bvm/pkg/models"
)

func (a *App) addCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add [path]",
		Short: "Register a Blender executable and verify it",
		Long: `Register a Blender executable. The file must be named blender, blender.exe
or Blender. It is verified right away but not activated; installations that
fail verification are kept and shown as invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				picked, err := a.picker.PickPath(ctx, i18n.T(a.lang(), "Path"))
				if err != nil {
					return err
				}
				path = picked
			}

			a.notify(Ongoing, "Verify Blender...")
			item, err := a.svc.Registrar.Add(ctx, path)
			if err != nil {
				return err
			}
			a.notifyf(Positive, "Verified Success: %s", item.Version+"-"+item.BuildHash)
			return nil
		},
	}
}

func (a *App) listCommand() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered installations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.svc.Lister.Installations(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				a.notify(Info, "No Blender registered")
				return nil
			}
			if plain {
				a.printPlain(items)
				return nil
			}
			fmt.Fprintln(a.out, tui.RenderCards(a.lang(), items, a.svc.Activation.Updating))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print one line per installation")
	return cmd
}

func (a *App) activateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "activate <path>",
		Aliases: []string{"use"},
		Short:   "Verify an installation and make it the active one",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.notify(Ongoing, "Verify Blender...")
			item, err := a.svc.Activation.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.notifyf(Positive, "Activated %s", item.Version+" ("+item.Path+")")
			return nil
		},
	}
}

func (a *App) deactivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Clear the active installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.svc.Activation.Deactivate(cmd.Context()); err != nil {
				return err
			}
			a.notify(Positive, "All Blender deactivated")
			return nil
		},
	}
}

func (a *App) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>",
		Short: "Verify a registered installation again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.notify(Ongoing, "Verify Blender...")
			item, err := a.svc.Activation.Reverify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.notifyf(Positive, "Verified Success: %s", item.Version+"-"+item.BuildHash)
			return nil
		},
	}
}

func (a *App) removeCommand() *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:     "remove <path>",
		Aliases: []string{"rm"},
		Short:   "Remove an installation from the registry",
		Long: `Remove an installation from the registry. Files on disk are left alone.
Removing the active installation requires --force.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !yes {
				ok, err := a.confirmer.Confirm(ctx, i18n.T(a.lang(), "Are you sure to remove this blender?"))
				if err != nil {
					return err
				}
				if !ok {
					a.notify(Info, "Cancel")
					return nil
				}
			}
			remaining, err := a.svc.Remover.Remove(ctx, args[0], force)
			if err != nil {
				return err
			}
			a.notify(Positive, "Removed")
			a.printPlain(remaining)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "allow removing the active installation")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *App) currentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the published Blender path and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, version := settings.Active(a.svc.Settings)
			if path == "" {
				a.notify(Info, "No active Blender")
				return nil
			}
			lang := a.lang()
			fmt.Fprintf(a.out, "%s: %s\n%s: %s\n", i18n.T(lang, "Path"), path, i18n.T(lang, "Version"), version)

			active, err := a.svc.Lister.Active(cmd.Context())
			if err != nil {
				severity, message := describeError(lang, err)
				a.notifier.Notify(severity, message)
				return nil
			}
			if active == nil {
				a.notify(Warning, "No active Blender")
			}
			return nil
		},
	}
}

func (a *App) revealCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal <path>",
		Short: "Open the installation directory in the file browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.Revealer.Reveal(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.notifyf(Info, "Opened %s", args[0])
			return nil
		},
	}
}

func (a *App) langCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lang [code]",
		Short: "Show or set the display language (en_US, zh_CN)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintf(a.out, "%s %v\n", a.lang(), i18n.Supported())
				return nil
			}
			code := i18n.Normalize(args[0])
			if err := a.svc.Settings.Set(settings.KeyLanguage, code); err != nil {
				return fmt.Errorf("cli: save language: %w", err)
			}
			a.notifyf(Positive, "Language set to %s", code)
			return nil
		},
	}
}

func (a *App) uiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Interactive installation switcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runUI(cmd.Context(), a.svc.Activation, a.lang())
		},
	}
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show bvm version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoBoot: "true"},
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.out, "bvm version %s (%s/%s)\n", a.version, runtime.GOOS, runtime.GOARCH)
		},
	}
}

func (a *App) printPlain(items []models.Installation) {
	if len(items) == 0 {
		fmt.Fprintln(a.out, "  (none)")
		return
	}
	for _, item := range items {
		fmt.Fprintf(a.out, "  %s\n", installation.FormatInstallation(item))
	}
}
