package domain

import "time"

// QualityLevel is the media transport's coarse connection quality report.
type QualityLevel string

const (
	QualityExcellent QualityLevel = "excellent"
	QualityGood      QualityLevel = "good"
	QualityPoor      QualityLevel = "poor"
)

// QualitySample is one quality report emitted by the media adapter. Consumed
// only by the quality governor.
type QualitySample struct {
	Level QualityLevel
	At    time.Time
}

// VideoTier is a resolution/frame-rate step the governor can ask the media
// adapter to restart the video track at.
type VideoTier string

const (
	VideoTierHigh VideoTier = "high"
	VideoTierLow  VideoTier = "low"
)

// TierSettings are the capture parameters of a video tier.
type TierSettings struct {
	Width     int
	Height    int
	FrameRate int
	Bitrate   int // kbps
}

// Settings returns the capture parameters for the tier.
func (t VideoTier) Settings() TierSettings {
	if t == VideoTierLow {
		return TierSettings{Width: 640, Height: 360, FrameRate: 15, Bitrate: 400}
	}
	return TierSettings{Width: 1280, Height: 720, FrameRate: 30, Bitrate: 2000}
}
