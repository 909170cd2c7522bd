package vision

// RawAnalysisResult is the vendor response, kept verbatim. It is never
// persisted on its own; a serialized copy travels inside the snapshot for
// audit.
type RawAnalysisResult struct {
	Tags        []RawTag        `json:"tags,omitempty"`
	Description *RawDescription `json:"description,omitempty"`
	Color       *RawColor       `json:"color,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	Metadata    *RawMetadata    `json:"metadata,omitempty"`
}

// RawTag is one vendor-assigned tag with its confidence
type RawTag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// RawDescription holds the vendor's caption candidates
type RawDescription struct {
	Captions []RawCaption `json:"captions,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
}

// RawCaption is one description candidate
type RawCaption struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// RawColor holds the vendor's color analysis
type RawColor struct {
	DominantColorForeground string   `json:"dominantColorForeground,omitempty"`
	DominantColorBackground string   `json:"dominantColorBackground,omitempty"`
	DominantColors          []string `json:"dominantColors,omitempty"`
	AccentColor             string   `json:"accentColor,omitempty"`
	IsBWImg                 bool     `json:"isBwImg,omitempty"`
}

// RawMetadata is the vendor's view of the submitted image
type RawMetadata struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`
}
