package experiment

import (
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ProblemLogger receives calibration and run progress plus anything the
// rig reports that a human should look at. It defaults to stderr.
var ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)

// StartLogger redirects ProblemLogger to a size-rotated file.
func StartLogger(filename string) {
	ProblemLogger.SetOutput(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10, // megabytes after which new file is created
		MaxBackups: 4,
		MaxAge:     180, // days
		Compress:   true,
	})
}
