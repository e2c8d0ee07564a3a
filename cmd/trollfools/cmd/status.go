/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/colors"
	mcmd "github.com/HuuDungg/TrollFools-Framework-Selected/internal/commands/macho"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/lifecycle"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/utils"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("links", "l", false, "List the dylibs loaded by the dummy framework")
	viper.BindPFlag("status.links", statusCmd.Flags().Lookup("links"))
}

func assetSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	if fi.IsDir() {
		return "dir"
	}
	return humanize.Bytes(uint64(fi.Size()))
}

func modeColor(m lifecycle.Mode) string {
	switch m {
	case lifecycle.ViaDummyFramework:
		return colors.Injected().Sprint(m)
	case lifecycle.Legacy:
		return colors.Pending().Sprint(m)
	default:
		return colors.Faint().Sprint(m)
	}
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <APP>",
	Short: "Show the injection state of an app",
	Example: heredoc.Doc(`
		# Show the injected assets and the dummy framework links
		❯ trollfools status --links /var/containers/Bundle/Application/<UUID>/Demo.app`),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		root, err := filepath.Abs(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %s", args[0])
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		st, err := svc.Status(root)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s (%s)\n", colors.Bold().Sprint("App:"), st.App.Name, st.App.ID)
		fmt.Printf("%s %s\n", colors.Bold().Sprint("Mode:"), modeColor(st.State.Mode))

		if len(st.State.InjectedAssets) > 0 {
			fmt.Println(colors.Header().Sprint("\nInjected"))
			for _, a := range st.State.InjectedAssets {
				fmt.Printf("%s%s %s\n", utils.Pad(2), colors.Injected().Sprint(filepath.Base(a)), colors.Faint().Sprintf("(%s)", assetSize(a)))
			}
		}
		if len(st.State.ModifiedMachOs) > 0 {
			fmt.Println(colors.Header().Sprint("\nModified"))
			for _, m := range st.State.ModifiedMachOs {
				rel, err := filepath.Rel(root, m)
				if err != nil {
					rel = m
				}
				fmt.Printf("%s%s\n", utils.Pad(2), colors.Path().Sprint(rel))
			}
		}
		if pending := utils.Difference(st.Persisted, st.State.InjectedAssets); len(pending) > 0 {
			fmt.Println(colors.Header().Sprint("\nPersisted"))
			for _, p := range pending {
				fmt.Printf("%s%s\n", utils.Pad(2), colors.Pending().Sprint(filepath.Base(p)))
			}
		}
		if len(st.Desisted) > 0 {
			fmt.Println(colors.Header().Sprint("\nDesisted"))
			for _, p := range st.Desisted {
				fmt.Printf("%s%s\n", utils.Pad(2), colors.Removed().Sprint(filepath.Base(p)))
			}
		}

		if viper.GetBool("status.links") && st.State.Mode == lifecycle.ViaDummyFramework {
			conf, err := config.LoadConfig()
			if err != nil {
				return err
			}
			exe := config.NewLayout(conf.MinOS).DummyExecutable(root)
			links, err := mcmd.LoadedDylibs(exe)
			if err != nil {
				log.WithError(err).Warn("Failed to read dummy framework load commands")
				return nil
			}
			fmt.Println(colors.Header().Sprint("\nDummy framework loads"))
			for _, l := range links {
				fmt.Printf("%s%s\n", utils.Pad(2), l)
			}
		}

		return nil
	},
}
