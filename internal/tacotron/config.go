// Package tacotron implements the sequence-to-sequence acoustic model:
// a character encoder with speaker-embedding conditioning, a
// location-sensitive attention bridge, an autoregressive frame decoder and
// a CBHG post-processing network.
package tacotron

import "fmt"

// MaxR is the widest reduction factor the mel projection supports. The
// projection always emits NMels*MaxR values; a step slices off the first r
// frames.
const MaxR = 20

// warmUpSteps is the minimum frame index before generation may stop, so a
// spuriously confident stop prediction at the start cannot truncate output.
const warmUpSteps = 10

// Config holds the model hyperparameters. Dimensions are int64 to match
// tensor shapes.
type Config struct {
	NumChars    int64
	EmbedDims   int64
	EncoderDims int64
	DecoderDims int64
	LSTMDims    int64
	NMels       int64
	// PostProjBins is the channel count of the post-projection output. The
	// CBHG residual connection requires it to equal NMels.
	PostProjBins int64
	PostnetDims  int64
	EncoderK     int64
	PostnetK     int64
	NumHighways  int64

	SpeakerEmbedSize int64

	Dropout       float32
	ZoneoutRate   float32
	StopThreshold float32

	// PrenetDropoutAlways keeps prenet dropout active outside training,
	// matching the reference behavior the weights were trained with.
	PrenetDropoutAlways bool
}

// DefaultConfig returns the standard synthesis configuration.
func DefaultConfig() Config {
	return Config{
		NumChars:            48,
		EmbedDims:           512,
		EncoderDims:         256,
		DecoderDims:         128,
		LSTMDims:            1024,
		NMels:               80,
		PostProjBins:        80,
		PostnetDims:         512,
		EncoderK:            5,
		PostnetK:            5,
		NumHighways:         4,
		SpeakerEmbedSize:    256,
		Dropout:             0.5,
		ZoneoutRate:         0.1,
		StopThreshold:       0.5,
		PrenetDropoutAlways: true,
	}
}

// Validate checks the dimensional constraints the layer wiring relies on.
func (c Config) Validate() error {
	for _, d := range []struct {
		name string
		v    int64
	}{
		{"num_chars", c.NumChars},
		{"embed_dims", c.EmbedDims},
		{"encoder_dims", c.EncoderDims},
		{"decoder_dims", c.DecoderDims},
		{"lstm_dims", c.LSTMDims},
		{"n_mels", c.NMels},
		{"postnet_dims", c.PostnetDims},
		{"encoder_k", c.EncoderK},
		{"postnet_k", c.PostnetK},
		{"num_highways", c.NumHighways},
		{"speaker_embedding_size", c.SpeakerEmbedSize},
	} {
		if d.v <= 0 {
			return fmt.Errorf("tacotron: %s must be positive, got %d", d.name, d.v)
		}
	}

	if c.PostProjBins != c.NMels {
		return fmt.Errorf("tacotron: post projection bins %d must equal n_mels %d for the postnet residual", c.PostProjBins, c.NMels)
	}

	if c.EncoderDims%2 != 0 || c.PostnetDims%2 != 0 {
		return fmt.Errorf("tacotron: encoder_dims %d and postnet_dims %d must be even for the bidirectional GRU", c.EncoderDims, c.PostnetDims)
	}

	if c.StopThreshold <= 0 || c.StopThreshold >= 1 {
		return fmt.Errorf("tacotron: stop threshold %g outside (0, 1)", c.StopThreshold)
	}

	return nil
}

// prenetDims returns the decoder prenet layer widths.
func (c Config) prenetDims() int64 {
	return c.DecoderDims * 2
}

// contextDims is the width of the attention context vector.
func (c Config) contextDims() int64 {
	return c.EncoderDims + c.SpeakerEmbedSize
}
