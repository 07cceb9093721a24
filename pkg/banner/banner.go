package banner

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"annotated/pkg/config"
)

const banner = `
 █████╗ ███╗   ██╗███╗   ██╗ ██████╗ ████████╗ █████╗ ████████╗███████╗██████╗
██╔══██╗████╗  ██║████╗  ██║██╔═══██╗╚══██╔══╝██╔══██╗╚══██╔══╝██╔════╝██╔══██╗
███████║██╔██╗ ██║██╔██╗ ██║██║   ██║   ██║   ███████║   ██║   █████╗  ██║  ██║
██╔══██║██║╚██╗██║██║╚██╗██║██║   ██║   ██║   ██╔══██║   ██║   ██╔══╝  ██║  ██║
██║  ██║██║ ╚████║██║ ╚████║╚██████╔╝   ██║   ██║  ██║   ██║   ███████╗██████╔╝
╚═╝  ╚═╝╚═╝  ╚═══╝╚═╝  ╚═══╝ ╚═════╝    ╚═╝   ╚═╝  ╚═╝   ╚═╝   ╚══════╝╚═════╝
`

// PrintWithEff prints the startup banner using the effective config for
// runtime context.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("Store:    %s%s\n", eff.StorePath, storeSize(eff.StorePath))
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config source: %s\n", eff.Source)
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("WS   /__annotate - browser push channel (session handshake + 2s sync)")
	fmt.Println("POST /v1/tools/{name} - agent tool channel (GET /v1/tools for the index)")
	fmt.Println("GET  /v1/sessions, /v1/annotations - read-only listings")
	fmt.Println("GET  /healthz, /readyz, /metrics")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://%s/v1/tools/get_all_pending'\n", eff.Addr)
	fmt.Printf("curl -X POST 'http://%s/v1/tools/watch_annotations' -d '{\"timeoutMs\":25000}'\n", eff.Addr)
	fmt.Println()
}

func storeSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", humanize.Bytes(uint64(fi.Size())))
}
