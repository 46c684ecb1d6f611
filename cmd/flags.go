package cmd

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
)

// mustGetBool gets a bool flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetString gets a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// thresholdFlag returns --threshold when it was given and def otherwise.
func thresholdFlag(cmd *cobra.Command, def float64) (float64, error) {
	if !cmd.Flags().Changed("threshold") {
		return def, nil
	}
	val, err := cmd.Flags().GetFloat64("threshold")
	if err != nil {
		panic(fmt.Sprintf("flag error for --threshold: %v", err))
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0, fmt.Errorf("--threshold must be a finite number, got %v", val)
	}
	return val, nil
}
