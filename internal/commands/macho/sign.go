package macho

import (
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/pkg/codesign"
	cstypes "github.com/blacktop/go-macho/pkg/codesign/types"
	"github.com/blacktop/go-macho/types"
)

// ToolError is returned when an external patch tool fails.
type ToolError struct {
	Tool   string
	Args   []string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s %s: %v", filepath.Base(e.Tool), strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %s", filepath.Base(e.Tool), strings.Join(e.Args, " "), e.Err, out)
}

func (e *ToolError) Unwrap() error { return e.Err }

// BypassTrustCheck re-signs machoPath so that it passes the CoreTrust check.
// With an external tool configured it is run as `<tool> -i <path> -r -t <team-id>`,
// otherwise every slice is ad-hoc signed keeping its identifier.
func (p *Patcher) BypassTrustCheck(machoPath string) error {
	if p.conf.CTBypass != "" {
		args := []string{"-i", machoPath, "-r"}
		if p.conf.TeamID != "" {
			args = append(args, "-t", p.conf.TeamID)
		}
		log.WithField("tool", p.conf.CTBypass).Debugf("Bypassing CoreTrust for %s", machoPath)
		var out bytes.Buffer
		cmd := exec.Command(p.conf.CTBypass, args...)
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			return &ToolError{Tool: p.conf.CTBypass, Args: args, Output: out.String(), Err: err}
		}
		return nil
	}

	log.Debugf("Ad-hoc signing %s", machoPath)
	if _, err := p.edit(machoPath, func(m *macho.File) (bool, error) {
		return true, p.adhocSign(m, machoPath)
	}); err != nil {
		return fmt.Errorf("failed to codesign %s: %w", machoPath, err)
	}
	return nil
}

func (p *Patcher) adhocSign(m *macho.File, machoPath string) error {
	conf := &codesign.Config{
		Flags:        cstypes.ADHOC,
		ID:           signingID(m, machoPath),
		TeamID:       p.conf.TeamID,
		SpecialSlots: []cstypes.SpecialSlot{{Hash: cstypes.EmptySha256Slot}},
	}
	for i := len(m.Loads) - 1; i >= 0; i-- {
		lc := m.Loads[i]
		if lc.Command() != types.LC_CODE_SIGNATURE {
			continue
		}
		cs := lc.(*macho.CodeSignature)
		if err := m.RemoveLoad(lc); err != nil {
			return fmt.Errorf("failed to remove code signature: %w", err)
		}
		if len(cs.CodeDirectories) > 0 {
			cd := cs.CodeDirectories[0]
			conf.Flags = cd.Header.Flags | cstypes.ADHOC
			if cd.ID != "" {
				conf.ID = cd.ID
			}
			if conf.TeamID == "" {
				conf.TeamID = cd.TeamID
			}
		}
		conf.Entitlements = []byte(cs.Entitlements)
		conf.EntitlementsDER = cs.EntitlementsDER
	}
	if err := m.CodeSign(conf); err != nil {
		return fmt.Errorf("failed to codesign MachO file: %w", err)
	}
	return nil
}

func signingID(m *macho.File, machoPath string) string {
	if id := m.DylibID(); id != nil && id.Name != "" {
		return filepath.Base(id.Name)
	}
	return filepath.Base(machoPath)
}
