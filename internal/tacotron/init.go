package tacotron

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-melsynth/internal/safetensors"
)

// InitTensors generates a full, randomly initialized parameter set with the
// tensor names NewModel expects. Weight matrices use Xavier-uniform
// initialization; biases start at zero, batch-norm scales at one.
func InitTensors(cfg Config, seed int64) ([]safetensors.Tensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &initGen{rng: rand.New(rand.NewSource(seed))}

	// Encoder.
	g.xavier("encoder.embedding.weight", cfg.NumChars, cfg.EmbedDims)
	g.linear("encoder.pre_net.fc1", cfg.EncoderDims, cfg.EmbedDims, true)
	g.linear("encoder.pre_net.fc2", cfg.EncoderDims, cfg.EncoderDims, true)
	g.cbhg("encoder.cbhg", cfg.EncoderK, cfg.EncoderDims, cfg.EncoderDims, cfg.EncoderDims, cfg.NumHighways)

	g.linear("encoder_proj", cfg.DecoderDims, cfg.contextDims(), false)

	// Decoder.
	g.linear("decoder.prenet.fc1", cfg.prenetDims(), cfg.NMels, true)
	g.linear("decoder.prenet.fc2", cfg.prenetDims(), cfg.prenetDims(), true)

	g.xavier("decoder.attn_net.conv.weight", lsaFilters, 1, lsaKernelSize)
	g.zeros("decoder.attn_net.conv.bias", lsaFilters)
	g.linear("decoder.attn_net.L", cfg.DecoderDims, lsaFilters, false)
	g.linear("decoder.attn_net.W", cfg.DecoderDims, cfg.DecoderDims, true)
	g.linear("decoder.attn_net.v", 1, cfg.DecoderDims, false)

	g.rnnCell("decoder.attn_rnn", 3, cfg.DecoderDims, cfg.contextDims()+cfg.prenetDims())
	g.linear("decoder.rnn_input", cfg.LSTMDims, cfg.contextDims()+cfg.DecoderDims, true)
	g.rnnCell("decoder.res_rnn1", 4, cfg.LSTMDims, cfg.LSTMDims)
	g.rnnCell("decoder.res_rnn2", 4, cfg.LSTMDims, cfg.LSTMDims)
	g.linear("decoder.mel_proj", cfg.NMels*MaxR, cfg.LSTMDims, false)
	g.linear("decoder.stop_proj", 1, cfg.LSTMDims+cfg.contextDims(), true)

	// Postnet.
	g.cbhg("postnet", cfg.PostnetK, cfg.NMels, cfg.PostnetDims, cfg.PostProjBins, cfg.NumHighways)
	g.linear("post_proj", cfg.PostProjBins, cfg.PostnetDims, false)

	return g.tensors, nil
}

// NewRandomModel builds an untrained model, for smoke tests and shape
// checks.
func NewRandomModel(cfg Config, seed int64) (*Model, error) {
	tensors, err := InitTensors(cfg, seed)
	if err != nil {
		return nil, err
	}

	data, err := safetensors.EncodeTensors(tensors)
	if err != nil {
		return nil, fmt.Errorf("tacotron: encode initial parameters: %w", err)
	}

	store, err := safetensors.OpenStoreFromBytes(data, safetensors.StoreOptions{})
	if err != nil {
		return nil, fmt.Errorf("tacotron: reopen initial parameters: %w", err)
	}

	return NewModel(store, cfg)
}

type initGen struct {
	rng     *rand.Rand
	tensors []safetensors.Tensor
}

func (g *initGen) add(name string, data []float32, shape []int64) {
	g.tensors = append(g.tensors, safetensors.Tensor{Name: name, Shape: shape, Data: data})
}

// xavier emits a Xavier-uniform tensor. For rank-3 convolution weights the
// kernel width multiplies both fans.
func (g *initGen) xavier(name string, shape ...int64) {
	total := int64(1)
	for _, d := range shape {
		total *= d
	}

	fanOut, fanIn := shape[0], shape[1]
	if len(shape) == 3 {
		fanOut *= shape[2]
		fanIn *= shape[2]
	}

	limit := float32(math.Sqrt(6 / float64(fanIn+fanOut)))

	data := make([]float32, total)
	for i := range data {
		data[i] = (g.rng.Float32()*2 - 1) * limit
	}

	g.add(name, data, shape)
}

func (g *initGen) zeros(name string, shape ...int64) {
	total := int64(1)
	for _, d := range shape {
		total *= d
	}

	g.add(name, make([]float32, total), shape)
}

func (g *initGen) ones(name string, shape ...int64) {
	total := int64(1)
	for _, d := range shape {
		total *= d
	}

	data := make([]float32, total)
	for i := range data {
		data[i] = 1
	}

	g.add(name, data, shape)
}

func (g *initGen) linear(name string, out, in int64, withBias bool) {
	g.xavier(name+".weight", out, in)

	if withBias {
		g.zeros(name+".bias", out)
	}
}

// rnnCell emits packed cell parameters: gates*units rows over the input and
// hidden widths.
func (g *initGen) rnnCell(name string, gates, units, in int64) {
	g.xavier(name+".weight_ih", gates*units, in)
	g.xavier(name+".weight_hh", gates*units, units)
	g.zeros(name+".bias_ih", gates*units)
	g.zeros(name+".bias_hh", gates*units)
}

func (g *initGen) batchNormConv(name string, out, in, kernel int64) {
	g.xavier(name+".conv.weight", out, in, kernel)
	g.ones(name+".bnorm.weight", out)
	g.zeros(name+".bnorm.bias", out)
	g.zeros(name+".bnorm.running_mean", out)
	g.ones(name+".bnorm.running_var", out)
}

func (g *initGen) cbhg(name string, k, inChannels, channels, projOut, numHighways int64) {
	for i := int64(0); i < k; i++ {
		g.batchNormConv(fmt.Sprintf("%s.conv1d_bank.%d", name, i), channels, inChannels, i+1)
	}

	g.batchNormConv(name+".conv_project1", channels, k*channels, 3)
	g.batchNormConv(name+".conv_project2", projOut, channels, 3)

	if projOut != channels {
		g.linear(name+".pre_highway", channels, projOut, false)
	}

	for i := int64(0); i < numHighways; i++ {
		g.linear(fmt.Sprintf("%s.highways.%d.W1", name, i), channels, channels, true)
		g.linear(fmt.Sprintf("%s.highways.%d.W2", name, i), channels, channels, true)
	}

	hidden := channels / 2
	for _, suffix := range []string{"_l0", "_l0_reverse"} {
		g.xavier(name+".rnn.weight_ih"+suffix, 3*hidden, channels)
		g.xavier(name+".rnn.weight_hh"+suffix, 3*hidden, hidden)
		g.zeros(name+".rnn.bias_ih"+suffix, 3*hidden)
		g.zeros(name+".rnn.bias_hh"+suffix, 3*hidden)
	}
}
