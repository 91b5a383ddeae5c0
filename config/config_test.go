package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestNew(t *testing.T) {
	viper.Reset()

	c := New()

	if c.OSTIR.Bin != "ostir" {
		t.Errorf("expected default ostir binary, got %s", c.OSTIR.Bin)
	}
	if c.Window.PreSeqMaxBP != 50 || c.Window.CDSMaxBP != 50 {
		t.Errorf("expected 50bp default windows, got %d and %d", c.Window.PreSeqMaxBP, c.Window.CDSMaxBP)
	}
	if c.Design.RefinementMultiplier != 2 {
		t.Errorf("expected default refinement multiplier of 2, got %d", c.Design.RefinementMultiplier)
	}
	if !c.Server.DefaultAsync {
		t.Error("expected async handling to default on")
	}
	if c.Server.DebugError {
		t.Error("expected debug error detail to default off")
	}
}

func TestNewClampsMultiplier(t *testing.T) {
	viper.Reset()
	t.Setenv("RBS_DESIGN_FULL_REFINEMENT_MULTIPLIER", "0")

	c := New()

	if c.Design.RefinementMultiplier != 1 {
		t.Errorf("expected multiplier clamped to 1, got %d", c.Design.RefinementMultiplier)
	}
}

func TestSDCoreList(t *testing.T) {
	viper.Reset()

	c := New()
	c.Design.SDCores = "aggagg, uaaggagg ,,"

	cores := c.SDCoreList()
	if len(cores) != 2 {
		t.Fatalf("expected 2 cores, got %d: %v", len(cores), cores)
	}
	if cores[0] != "AGGAGG" || cores[1] != "TAAGGAGG" {
		t.Errorf("expected normalized DNA cores, got %v", cores)
	}

	c.Design.SDCores = " , "
	cores = c.SDCoreList()
	if len(cores) != 1 || cores[0] != "AGGAGG" {
		t.Errorf("expected fallback to the canonical core, got %v", cores)
	}
}
