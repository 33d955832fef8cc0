package entity

import "fmt"

// PhaseState 流水线状态，任意时刻只处于其中一个
type PhaseState string

const (
	StateIdle                        PhaseState = "Idle"
	StateGeneratingSynopsis          PhaseState = "GeneratingSynopsis"
	StateRefiningSynopsis            PhaseState = "RefiningSynopsis"
	StateAwaitingSynopsisApproval    PhaseState = "AwaitingSynopsisApproval"
	StateGeneratingOutline           PhaseState = "GeneratingOutline"
	StateAwaitingOutlineApproval     PhaseState = "AwaitingOutlineApproval"
	StateRefiningOutline             PhaseState = "RefiningOutline"
	StateGeneratingCharacters        PhaseState = "GeneratingCharacters"
	StateAwaitingCharactersApproval  PhaseState = "AwaitingCharactersApproval"
	StateRefiningCharacters          PhaseState = "RefiningCharacters"
	StateGeneratingWorld             PhaseState = "GeneratingWorld"
	StateAwaitingWorldApproval       PhaseState = "AwaitingWorldApproval"
	StateRefiningWorld               PhaseState = "RefiningWorld"
	StateGeneratingTimeline          PhaseState = "GeneratingTimeline"
	StateAwaitingTimelineApproval    PhaseState = "AwaitingTimelineApproval"
	StateRefiningTimeline            PhaseState = "RefiningTimeline"
	StateGeneratingSection           PhaseState = "GeneratingSection"
	StateAwaitingSectionApproval     PhaseState = "AwaitingSectionApproval"
	StateRefiningSection             PhaseState = "RefiningSection"
	StateAwaitingMilestoneDecision   PhaseState = "AwaitingMilestoneDecision"
	StateConsistencyCheck            PhaseState = "ConsistencyCheck"
	StateAwaitingConsistencyDecision PhaseState = "AwaitingConsistencyDecision"
	StateComplete                    PhaseState = "Complete"
)

// ContentType 可审批的产物类型
type ContentType string

const (
	ContentSynopsis   ContentType = "synopsis"
	ContentOutline    ContentType = "outline"
	ContentCharacters ContentType = "characters"
	ContentWorld      ContentType = "world"
	ContentTimeline   ContentType = "timeline"
	ContentSection    ContentType = "section"
)

// ContentTypes 按流水线顺序排列
var ContentTypes = []ContentType{
	ContentSynopsis, ContentOutline, ContentCharacters, ContentWorld, ContentTimeline, ContentSection,
}

type phaseStates struct {
	generating PhaseState
	refining   PhaseState
	awaiting   PhaseState
}

var contentStates = map[ContentType]phaseStates{
	ContentSynopsis:   {StateGeneratingSynopsis, StateRefiningSynopsis, StateAwaitingSynopsisApproval},
	ContentOutline:    {StateGeneratingOutline, StateRefiningOutline, StateAwaitingOutlineApproval},
	ContentCharacters: {StateGeneratingCharacters, StateRefiningCharacters, StateAwaitingCharactersApproval},
	ContentWorld:      {StateGeneratingWorld, StateRefiningWorld, StateAwaitingWorldApproval},
	ContentTimeline:   {StateGeneratingTimeline, StateRefiningTimeline, StateAwaitingTimelineApproval},
	ContentSection:    {StateGeneratingSection, StateRefiningSection, StateAwaitingSectionApproval},
}

// ParseContentType 解析产物类型
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(s)
	if _, ok := contentStates[ct]; !ok {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return ct, nil
}

// Generating 返回该产物的生成中状态
func (c ContentType) Generating() PhaseState { return contentStates[c].generating }

// Refining 返回该产物的修订中状态
func (c ContentType) Refining() PhaseState { return contentStates[c].refining }

// Awaiting 返回该产物的待审批状态
func (c ContentType) Awaiting() PhaseState { return contentStates[c].awaiting }

// Next 返回审批通过后进入的下一产物，section 之后没有后继
func (c ContentType) Next() (ContentType, bool) {
	for i, ct := range ContentTypes {
		if ct == c && i+1 < len(ContentTypes) {
			return ContentTypes[i+1], true
		}
	}
	return "", false
}

// AwaitingContent 若状态为某产物的待审批状态则返回该产物
func (s PhaseState) AwaitingContent() (ContentType, bool) {
	for ct, st := range contentStates {
		if st.awaiting == s {
			return ct, true
		}
	}
	return "", false
}

// Busy 表示后台正在执行生成步骤
func (s PhaseState) Busy() bool {
	if s == StateConsistencyCheck {
		return true
	}
	for _, st := range contentStates {
		if st.generating == s || st.refining == s {
			return true
		}
	}
	return false
}

// Settled 表示没有生成步骤在运行，可以切换项目
func (s PhaseState) Settled() bool {
	return !s.Busy()
}
