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
	"text/tabwriter"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/colors"
	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/dylib"
	"github.com/HuuDungg/TrollFools-Framework-Selected/pkg/plist"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(dummyCmd)
	dummyCmd.Flags().StringP("output", "o", "", "Output file or directory")
	dummyCmd.Flags().StringP("install-name", "n", "", "Install name (default: @rpath/TrollFoolsDummy.framework/TrollFoolsDummy)")
	dummyCmd.Flags().BoolP("framework", "f", false, "Write a complete .framework bundle")
	dummyCmd.Flags().Bool("verify", false, "Print the layout of every slice")
	viper.BindPFlag("dummy.output", dummyCmd.Flags().Lookup("output"))
	viper.BindPFlag("dummy.install-name", dummyCmd.Flags().Lookup("install-name"))
	viper.BindPFlag("dummy.framework", dummyCmd.Flags().Lookup("framework"))
	viper.BindPFlag("dummy.verify", dummyCmd.Flags().Lookup("verify"))
}

// dummyCmd represents the dummy command
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Build the dummy FAT dylib",
	Example: heredoc.Doc(`
		# Build the dummy dylib and print its layout
		❯ trollfools dummy --verify
		# Build a complete framework into /tmp
		❯ trollfools dummy --framework -o /tmp`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		output := viper.GetString("dummy.output")
		installName := viper.GetString("dummy.install-name")
		framework := viper.GetBool("dummy.framework")

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}
		layout := config.NewLayout(conf.MinOS)
		if installName == "" {
			installName = layout.DummyInstallName()
		}

		b, err := dylib.NewBuilder(conf.MinOS)
		if err != nil {
			return err
		}
		dat, err := b.BuildFatDylib(installName)
		if err != nil {
			return errors.Wrap(err, "failed to build dummy dylib")
		}

		var path string
		if framework {
			dir := filepath.Join(output, layout.DummyFramework())
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create %s", dir)
			}
			info, err := plist.NewFrameworkInfo(layout.DummyName, layout.DummyBundleID, layout.MinimumOSVersion).Marshal()
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, "Info.plist"), info, 0o644); err != nil {
				return errors.Wrap(err, "failed to write Info.plist")
			}
			path = filepath.Join(dir, layout.DummyName)
		} else {
			path = output
			if path == "" {
				path = layout.DummyName
			} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
				path = filepath.Join(path, layout.DummyName)
			}
		}
		if err := os.WriteFile(path, dat, 0o755); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
		log.WithFields(log.Fields{
			"path": path,
			"size": humanize.Bytes(uint64(len(dat))),
		}).Info("Created dummy dylib")

		if viper.GetBool("dummy.verify") {
			slices, err := dylib.Inspect(dat)
			if err != nil {
				return errors.Wrap(err, "failed to verify dummy dylib")
			}
			printSlices(slices)
		}

		return nil
	},
}

func printSlices(slices []dylib.SliceInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, colors.Header().Sprint("ARCH\tOFFSET\tSIZE\tCMDS\tSLACK\tRET\tUUID"))
	for _, s := range slices {
		fmt.Fprintf(w, "%s\t%#x\t%s\t%d (%s)\t%d\t%t\t%s\n",
			s.SubCPU.String(s.CPU),
			s.Offset,
			humanize.IBytes(s.Size),
			s.NCommands,
			humanize.IBytes(uint64(s.SizeOfCmds)),
			s.Slack,
			s.Ret,
			s.UUID,
		)
	}
	w.Flush()
	if len(slices) > 0 {
		fmt.Printf("\n%s %s\n", colors.Bold().Sprint("install name:"), colors.Path().Sprint(slices[0].InstallName))
	}
}
