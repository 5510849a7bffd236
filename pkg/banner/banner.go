package banner

import (
	"fmt"

	"chatsync/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██║     ███████║███████║   ██║   ███████╗ ╚████╔╝ ██╔██╗ ██║██║
██║     ██╔══██║██╔══██║   ██║   ╚════██║  ╚██╔╝  ██║╚██╗██║██║
╚██████╗██║  ██║██║  ██║   ██║   ███████║   ██║   ██║ ╚████║╚██████╗
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// Print prints the startup banner with the effective configuration.
func Print(cfg *config.Config, addr, dbPath, source, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if source != "" {
		fmt.Printf("Config:   %s\n", source)
	}
	if cfg.Remote.BaseURL != "" {
		fmt.Printf("Remote:   %s\n", cfg.Remote.BaseURL)
	} else {
		fmt.Println("Remote:   (not configured - local only)")
	}
	if cfg.LLM.APIKey != "" {
		fmt.Println("Titles:   auto-generation enabled")
	}
	if cfg.Compaction.Enabled {
		fmt.Printf("Compact:  %s\n", cfg.Compaction.Cron)
	}

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s/v1/conversation'\n", addr)
	fmt.Printf("curl -X POST 'http://%s/v1/conversation/messages' -d '{\"role\":\"user\",\"parts\":[{\"text\":\"hello\"}]}'\n", addr)
	fmt.Printf("curl -X POST 'http://%s/v1/sync'\n", addr)

	if cfg.Security.APIKey == "" {
		fmt.Println("\n== Production? =================================================")
		fmt.Println("Set an API key (CHATSYNC_API_KEY) before exposing beyond loopback")
	}
}
