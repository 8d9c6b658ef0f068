package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"zfscrypt/keywrap"
)

func newUnwrapCommand() *cobra.Command {
	var (
		wrappingKeyHex string
		ivHex          string
		wrappedMaster  string
		wrappedHMAC    string
		tagHex         string
	)

	cmd := &cobra.Command{
		Use:   "unwrap",
		Short: "Unwrap a blob produced by wrap and print the recovered key material",
		RunE: func(cmd *cobra.Command, args []string) error {
			algoID, err := cfg.AlgorithmID()
			if err != nil {
				return err
			}

			wrappingKey, err := hex.DecodeString(wrappingKeyHex)
			if err != nil {
				return fmt.Errorf("unwrap: --wrapping-key must be hex: %w", err)
			}

			var blob keywrap.Blob
			if err := decodeFixed(ivHex, blob.IV[:]); err != nil {
				return fmt.Errorf("unwrap: --iv: %w", err)
			}
			blob.WrappedMaster, err = hex.DecodeString(wrappedMaster)
			if err != nil {
				return fmt.Errorf("unwrap: --wrapped-master must be hex: %w", err)
			}
			if err := decodeFixed(wrappedHMAC, blob.WrappedHMAC[:]); err != nil {
				return fmt.Errorf("unwrap: --wrapped-hmac: %w", err)
			}
			if err := decodeFixed(tagHex, blob.Tag[:]); err != nil {
				return fmt.Errorf("unwrap: --tag: %w", err)
			}

			k, err := keywrap.Unwrap(blob, algoID, wrappingKey, cfg.RotationThreshold)
			if err != nil {
				return fmt.Errorf("unwrap: %w", err)
			}
			defer k.Destroy()

			hmacKey := k.HMACKey()
			masterKey := k.ExportMasterKey()
			defer zero(masterKey)

			fmt.Fprintf(cmd.OutOrStdout(), "master_key: %s\n", hex.EncodeToString(masterKey))
			fmt.Fprintf(cmd.OutOrStdout(), "hmac_key:   %s\n", hex.EncodeToString(hmacKey[:]))
			logger.Infof("unwrapped a %s dataset key", cfg.Algorithm)
			return nil
		},
	}

	cmd.Flags().StringVar(&wrappingKeyHex, "wrapping-key", "", "hex-encoded wrapping key")
	cmd.Flags().StringVar(&ivHex, "iv", "", "hex-encoded 12-byte IV")
	cmd.Flags().StringVar(&wrappedMaster, "wrapped-master", "", "hex-encoded wrapped master key")
	cmd.Flags().StringVar(&wrappedHMAC, "wrapped-hmac", "", "hex-encoded wrapped HMAC key")
	cmd.Flags().StringVar(&tagHex, "tag", "", "hex-encoded 16-byte authentication tag")
	for _, name := range []string{"wrapping-key", "iv", "wrapped-master", "wrapped-hmac", "tag"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func decodeFixed(s string, dst []byte) error {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(decoded) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(decoded))
	}
	copy(dst, decoded)
	return nil
}
