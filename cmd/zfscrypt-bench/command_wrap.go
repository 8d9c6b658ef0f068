package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"zfscrypt/crypto/aead"
	"zfscrypt/dataset"
	"zfscrypt/keywrap"
)

func newWrapCommand() *cobra.Command {
	var wrappingKeyHex string

	cmd := &cobra.Command{
		Use:   "wrap",
		Short: "Generate a fresh dataset key and wrap it under a wrapping key",
		RunE: func(cmd *cobra.Command, args []string) error {
			algoID, err := cfg.AlgorithmID()
			if err != nil {
				return err
			}

			wrappingKey, err := hex.DecodeString(wrappingKeyHex)
			if err != nil {
				return fmt.Errorf("wrap: --wrapping-key must be hex: %w", err)
			}

			k, err := dataset.NewWithThreshold(aead.StdProvider{}, algoID, cfg.RotationThreshold)
			if err != nil {
				return fmt.Errorf("wrap: %w", err)
			}
			defer k.Destroy()

			blob, err := keywrap.Wrap(k, wrappingKey)
			if err != nil {
				return fmt.Errorf("wrap: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "iv:             %s\n", hex.EncodeToString(blob.IV[:]))
			fmt.Fprintf(cmd.OutOrStdout(), "wrapped_master: %s\n", hex.EncodeToString(blob.WrappedMaster))
			fmt.Fprintf(cmd.OutOrStdout(), "wrapped_hmac:   %s\n", hex.EncodeToString(blob.WrappedHMAC[:]))
			fmt.Fprintf(cmd.OutOrStdout(), "tag:            %s\n", hex.EncodeToString(blob.Tag[:]))
			logger.Infof("wrapped a %s dataset key", cfg.Algorithm)
			return nil
		},
	}

	cmd.Flags().StringVar(&wrappingKeyHex, "wrapping-key", "", "hex-encoded wrapping key, length matching the chosen algorithm")
	cmd.MarkFlagRequired("wrapping-key")
	return cmd
}
