package rbs

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/jeageon/RBS-cal/config"
)

// the ViennaRNA command-line binaries OSTIR calls at runtime
var viennaBinaries = []string{"RNAfold", "RNAsubopt", "RNAeval"}

// CheckDependencies verifies the OSTIR binary and the ViennaRNA
// binaries it depends on are resolvable before serving any requests.
// A missing dependency is a startup-time fatal condition, not a
// per-request error
func CheckDependencies(conf *config.Config) error {
	if _, err := exec.LookPath(conf.OSTIR.Bin); err != nil {
		return fmt.Errorf(
			"OSTIR executable not found: %s. Add to PATH or set OSTIR_BIN to a full executable path",
			conf.OSTIR.Bin,
		)
	}

	var missing []string
	for _, binary := range viennaBinaries {
		if _, err := exec.LookPath(binary); err != nil {
			missing = append(missing, binary)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf(
			"ViennaRNA command dependencies are missing in PATH. Missing: %s. Expected: %s. "+
				"Install ViennaRNA and ensure its bin directory is on PATH",
			strings.Join(missing, ", "),
			strings.Join(viennaBinaries, ", "),
		)
	}

	return nil
}

// viennaLocations reports where each ViennaRNA binary resolved to, for
// error messages
func viennaLocations() string {
	var locations []string
	for _, binary := range viennaBinaries {
		resolved, err := exec.LookPath(binary)
		if err != nil {
			resolved = "<missing>"
		}
		locations = append(locations, fmt.Sprintf("%s: %s", binary, resolved))
	}
	return strings.Join(locations, " ")
}
