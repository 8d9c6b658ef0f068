package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"zfscrypt/crypto/aead"
	"zfscrypt/dataset"
)

func newKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a fresh dataset key and print its key material",
		RunE: func(cmd *cobra.Command, args []string) error {
			algoID, err := cfg.AlgorithmID()
			if err != nil {
				return err
			}

			k, err := dataset.NewWithThreshold(aead.StdProvider{}, algoID, cfg.RotationThreshold)
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			defer k.Destroy()

			salt, err := k.GetSalt()
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			hmacKey := k.HMACKey()
			masterKey := k.ExportMasterKey()
			defer zero(masterKey)

			fmt.Fprintf(cmd.OutOrStdout(), "algorithm:  %s\n", cfg.Algorithm)
			fmt.Fprintf(cmd.OutOrStdout(), "master_key: %s\n", hex.EncodeToString(masterKey))
			fmt.Fprintf(cmd.OutOrStdout(), "hmac_key:   %s\n", hex.EncodeToString(hmacKey[:]))
			fmt.Fprintf(cmd.OutOrStdout(), "salt:       %s\n", hex.EncodeToString(salt[:]))
			logger.Infof("generated a %s dataset key", cfg.Algorithm)
			return nil
		},
	}
	return cmd
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
