package cli

var (
	verbose       bool
	configPath    string
	serverAddress string

	// all commands
	deviceId string

	// for screenshot command
	screenshotOutputPath  string
	screenshotFormat      string
	screenshotJpegQuality int
	screenshotCached      bool

	// for io commands
	longPressDuration  int
	swipeDuration      int
	swipeHold          int
	swipeInterpolation string

	// for push command
	pushMode string

	// for disconnect command
	disconnectOffline bool

	// for device info command
	infoNegotiate bool
)

var (
	// for server commands
	rpcListenAddr string
	rpcEnableCORS bool
	rpcDaemon     bool
)
