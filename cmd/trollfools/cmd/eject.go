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

	"github.com/AlecAivazis/survey/v2"
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(ejectCmd)
	ejectCmd.Flags().BoolP("all", "a", false, "Eject every injected asset")
	ejectCmd.Flags().BoolP("desist", "d", false, "Do not re-inject the ejected assets")
	ejectCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	viper.BindPFlag("eject.all", ejectCmd.Flags().Lookup("all"))
	viper.BindPFlag("eject.desist", ejectCmd.Flags().Lookup("desist"))
	viper.BindPFlag("eject.yes", ejectCmd.Flags().Lookup("yes"))
}

func confirm(msg string, yes bool) bool {
	if yes {
		return true
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Warn("stdin is not a terminal; pass --yes to skip the confirmation")
		return false
	}
	ok := false
	prompt := &survey.Confirm{
		Message: msg,
	}
	survey.AskOne(prompt, &ok)
	return ok
}

// resolveAsset finds an asset given by name in the Frameworks directory or
// the root of the bundle.
func resolveAsset(root, asset string) (string, error) {
	if filepath.IsAbs(asset) {
		return filepath.Clean(asset), nil
	}
	for _, dir := range []string{filepath.Join(root, "Frameworks"), root} {
		p := filepath.Join(dir, asset)
		if _, err := os.Lstat(p); err == nil {
			return p, nil
		}
	}
	abs, err := filepath.Abs(asset)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", asset)
	}
	return abs, nil
}

// ejectCmd represents the eject command
var ejectCmd = &cobra.Command{
	Use:   "eject <APP> [ASSET]...",
	Short: "Eject injected assets from an app",
	Example: heredoc.Doc(`
		# Eject one tweak
		❯ trollfools eject /var/containers/Bundle/Application/<UUID>/Demo.app Tweak.dylib
		# Eject everything and forget it
		❯ trollfools eject --all --desist /var/containers/Bundle/Application/<UUID>/Demo.app`),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		all := viper.GetBool("eject.all")
		desist := viper.GetBool("eject.desist")
		yes := viper.GetBool("eject.yes")

		if all && len(args) > 1 {
			return fmt.Errorf("cannot use --all with a list of assets")
		} else if !all && len(args) == 1 {
			return fmt.Errorf("must supply assets to eject or --all")
		}

		root, err := filepath.Abs(args[0])
		if err != nil {
			return errors.Wrapf(err, "failed to resolve %s", args[0])
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signalContext()
		defer stop()

		if all {
			if !confirm(fmt.Sprintf("Eject every asset from %s?", filepath.Base(root)), yes) {
				log.Warn("Aborted")
				return nil
			}
			return svc.EjectAll(ctx, root, desist)
		}

		var assets []string
		for _, a := range args[1:] {
			p, err := resolveAsset(root, a)
			if err != nil {
				return err
			}
			assets = append(assets, p)
		}
		return svc.Eject(ctx, root, assets, desist)
	},
}
