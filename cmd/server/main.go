package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kanrigate",
		Short: "Provision and inspect per-user Kubernetes permissions",
		Long: `kanrigate manages ServiceAccounts, their token secrets and the
RoleBindings and ClusterRoleBindings that grant them template ClusterRoles.
It serves an HTTP API for a web UI and can generate kubeconfig files.

When run without subcommands it starts the HTTP server (same as 'kanrigate serve').`,
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(`{{printf "kanrigate version %s\n" .Version}}`)

	root.AddCommand(newServeCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newKubeconfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
