package platform_test

import (
	"fmt"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/platform"
)

func ExampleNormalizeArch() {
	arch, err := platform.NormalizeArch("amd64")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(arch)
	// Output: x64
}
