package cmd

import (
	"fmt"
	"runtime"

	"opshub.dev/opshub/internal/brand"
)

// RunVersion prints the build identity.
func RunVersion() {
	fmt.Printf("%s %s (%s %s/%s)\n",
		brand.BinaryName, brand.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
