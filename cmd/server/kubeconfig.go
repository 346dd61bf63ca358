package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/kanrigate/internal/config"
	"github.com/example/kanrigate/internal/k8s"
)

func newKubeconfigCmd() *cobra.Command {
	var (
		username  string
		namespace string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "kubeconfig",
		Short: "Generate a kubeconfig for a provisioned user",
		Long: `Generate a kubeconfig that authenticates as the user's ServiceAccount
through its token secret. The cluster name and server address come from
APP_CLUSTER_NAME and APP_CONTROL_PLANE_ADDRESS.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			client, err := k8s.NewClientFromPath(cfg.Kubeconfig)
			if err != nil {
				return err
			}
			ops := k8s.NewOps(client, k8s.WithCredentialNamespace(cfg.CredentialNamespace))

			out, err := ops.GenerateKubeconfig(cmd.Context(), k8s.KubeconfigRequest{
				Username:            username,
				Namespace:           namespace,
				ClusterName:         cfg.ClusterName,
				ControlPlaneAddress: cfg.ControlPlaneAddress,
			})
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			if err := os.WriteFile(output, out, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "user to generate the kubeconfig for")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "default namespace of the context")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "file to write, - for stdout")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}
