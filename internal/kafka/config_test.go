package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
)

func TestApplySASL(t *testing.T) {
	tests := []struct {
		mechanism string
		enabled   bool
		want      sarama.SASLMechanism
	}{
		{MechanismNone, false, ""},
		{MechanismSCRAMSHA256, true, sarama.SASLTypeSCRAMSHA256},
		{MechanismSCRAMSHA512, true, sarama.SASLTypeSCRAMSHA512},
	}

	for _, tt := range tests {
		t.Run(tt.mechanism, func(t *testing.T) {
			cfg := sarama.NewConfig()
			applySASL(cfg, tt.mechanism, "user", "pass")

			require.Equal(t, tt.enabled, cfg.Net.SASL.Enable)

			if !tt.enabled {
				require.Nil(t, cfg.Net.SASL.SCRAMClientGeneratorFunc)
				return
			}

			require.Equal(t, tt.want, cfg.Net.SASL.Mechanism)
			require.Equal(t, "user", cfg.Net.SASL.User)

			client := cfg.Net.SASL.SCRAMClientGeneratorFunc()
			require.NoError(t, client.Begin("user", "pass", ""))

			first, err := client.Step("")
			require.NoError(t, err)
			require.Contains(t, first, "n=user")
		})
	}
}

func TestSaramaConfigIsValid(t *testing.T) {
	require.NoError(t, newSaramaConfig().Validate())
}
