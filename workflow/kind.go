package workflow

// StepKind names the capability a step exercises. The set is closed:
// handlers are registered per kind and a definition may only use kinds
// listed here.
type StepKind string

const (
	KindDriveFolder          StepKind = "drive_folder"
	KindContractDraft        StepKind = "contract_draft"
	KindHumanApproval        StepKind = "human_approval"
	KindCommunicationChannel StepKind = "communication_channel"
	KindRepository           StepKind = "repository"
	KindProjectBoard         StepKind = "project_board"
	KindWelcomeEmail         StepKind = "welcome_email"
	KindBilling              StepKind = "billing"
)

var allKinds = []StepKind{
	KindDriveFolder,
	KindContractDraft,
	KindHumanApproval,
	KindCommunicationChannel,
	KindRepository,
	KindProjectBoard,
	KindWelcomeEmail,
	KindBilling,
}

// Kinds returns every known step kind in declaration order.
func Kinds() []StepKind {
	out := make([]StepKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Valid reports whether k is a known step kind.
func (k StepKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k StepKind) String() string { return string(k) }
