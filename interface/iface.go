package iface

// ImageLoader decodes image files for the presence gate and the preprocessor.
type ImageLoader interface {
	// LoadRGB decodes path as color, resizes it bicubically to width x height and returns RGB-ordered pixels.
	LoadRGB(path string, width, height int) (RGBImage, error)
	// LoadGray decodes path as single-channel intensity data at its native size.
	LoadGray(path string) (GrayImage, error)
}

// Runtime opens model artifacts.
type Runtime interface {
	Open(modelPath string) (Session, error)
}

// Session is one loaded model.
type Session interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	// Run feeds input under inputName and returns outputName flattened to float32.
	Run(inputName string, input Tensor, outputName string) ([]float32, error)
	Destroy() error
}

// Recorder observes a batch run. Calls arrive from the run's worker goroutine in order.
type Recorder interface {
	RunStarted(run RunInfo)
	FileDone(run RunInfo, outcome Outcome)
	RunFinished(run RunInfo, summary Summary)
}
