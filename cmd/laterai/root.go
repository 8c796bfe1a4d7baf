package main

import "github.com/spf13/cobra"

func rootCMD() *cobra.Command {
	var cfgPath string
	var root = &cobra.Command{
		Use:          "laterai",
		Short:        "Save links, text and images and let AI file them",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./configs", "directory containing config.yaml")

	root.AddCommand(
		serveCMD(&cfgPath),
		signupCMD(&cfgPath),
		loginCMD(&cfgPath),
		logoutCMD(&cfgPath),
		captureCMD(&cfgPath),
		listCMD(&cfgPath),
		starCMD(&cfgPath),
		deleteCMD(&cfgPath),
		reclassifyCMD(&cfgPath),
	)
	return root
}
