package node

import "github.com/kolosalai/kolosal-agentd/core"

// LoadingParamsAsAgentData flattens p into the AgentData form
// download.EngineParams carries: the download package cannot reference this
// one (it sits below node in the import graph), so load parameters cross it
// as an opaque envelope and are rebuilt on the far side.
func LoadingParamsAsAgentData(p LoadingParameters) core.AgentData {
	d := core.NewAgentData()
	d["n_ctx"] = core.IntValue(p.ContextSize)
	d["n_batch"] = core.IntValue(p.BatchSize)
	d["n_ubatch"] = core.IntValue(p.UBatchSize)
	d["n_gpu_layers"] = core.IntValue(p.GPULayers)
	d["n_parallel"] = core.IntValue(p.ParallelCount)
	d["n_keep"] = core.IntValue(p.KeepTokens)
	d["use_mlock"] = core.BoolValue(p.UseMlock)
	d["use_mmap"] = core.BoolValue(p.UseMmap)
	d["cont_batching"] = core.BoolValue(p.ContBatching)
	d["warmup"] = core.BoolValue(p.Warmup)
	return d
}

// LoadingParamsFromAgentData rebuilds LoadingParameters from the envelope
// produced by LoadingParamsAsAgentData. Missing keys decode as zero values.
func LoadingParamsFromAgentData(d core.AgentData) LoadingParameters {
	var p LoadingParameters
	p.ContextSize, _ = d["n_ctx"].Int()
	p.BatchSize, _ = d["n_batch"].Int()
	p.UBatchSize, _ = d["n_ubatch"].Int()
	p.GPULayers, _ = d["n_gpu_layers"].Int()
	p.ParallelCount, _ = d["n_parallel"].Int()
	p.KeepTokens, _ = d["n_keep"].Int()
	p.UseMlock, _ = d["use_mlock"].Bool()
	p.UseMmap, _ = d["use_mmap"].Bool()
	p.ContBatching, _ = d["cont_batching"].Bool()
	p.Warmup, _ = d["warmup"].Bool()
	return p
}
