package domain

// FocusSource identifies which input source asked for focus.
type FocusSource string

const (
	SourceCategoryList FocusSource = "category_list"
	SourceChannelList  FocusSource = "channel_list"
	SourceScreen       FocusSource = "screen"
	SourceExternal     FocusSource = "external"
)

// FocusMode is the panel-level focus mode of the menu.
type FocusMode string

const (
	ModeDisabled      FocusMode = "disabled"
	ModeCategoryPanel FocusMode = "category_panel"
	ModeChannelPanel  FocusMode = "channel_panel"
	ModeTransitioning FocusMode = "transitioning"
)

// PanelSource returns the list source that naturally owns focus in mode m.
// Modes without a panel return false.
func (m FocusMode) PanelSource() (FocusSource, bool) {
	switch m {
	case ModeCategoryPanel:
		return SourceCategoryList, true
	case ModeChannelPanel:
		return SourceChannelList, true
	default:
		return "", false
	}
}
