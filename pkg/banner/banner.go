package banner

import (
	"fmt"
	"strings"

	"chatrelay/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗ ███████╗██╗      █████╗ ██╗   ██╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
██║     ███████║███████║   ██║   ██████╔╝█████╗  ██║     ███████║ ╚████╔╝
██║     ██╔══██║██╔══██║   ██║   ██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
╚██████╗██║  ██║██║  ██║   ██║   ██║  ██║███████╗███████╗██║  ██║   ██║
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`

// PrintWithEff prints the banner plus a quick checklist derived from the
// effective config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("WS   /ws?token=<jwt>                     - Real-time events and call signaling")
	fmt.Println("GET  /api/chats/messages/<conversation>  - Conversation history")
	fmt.Println("GET  /api/contacts/friends               - Friend list")
	fmt.Println("POST /api/upload                         - Media upload (multipart)")

	fmt.Println("\n== Production? =================================================")
	// identity
	issuer := ""
	secret := ""
	if eff.Config != nil {
		issuer = strings.TrimSpace(eff.Config.Identity.Issuer)
		secret = strings.TrimSpace(eff.Config.Identity.HS256Secret)
	}
	switch {
	case issuer != "":
		fmt.Printf("- Identity: OIDC (%s)\n", issuer)
	case secret != "":
		fmt.Println("- Identity: HS256 shared secret (dev only)")
	default:
		fmt.Println("- Identity: MISSING (set identity.issuer or identity.hs256_secret)")
	}

	// blob storage
	blobOK := eff.Config != nil && eff.Config.Blob.Bucket != ""
	if blobOK {
		fmt.Printf("- Uploads: bucket %s\n", eff.Config.Blob.Bucket)
	} else {
		fmt.Println("- Uploads: disabled (no blob.bucket configured)")
	}

	// TLS
	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or CHATRELAY_DB_PATH)")
	}

	// retention
	retEnabled := eff.Config != nil && eff.Config.Retention.Enabled
	if retEnabled {
		info := ""
		if eff.Config.Retention.Cron != "" {
			info = "cron=" + eff.Config.Retention.Cron
		} else if eff.Config.Retention.Period != "" {
			info = "period=" + eff.Config.Retention.Period
		}
		if info != "" {
			fmt.Printf("- Retention: enabled (%s)\n", info)
		} else {
			fmt.Println("- Retention: enabled")
		}
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
