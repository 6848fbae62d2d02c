package workflow

import "time"

// DefaultOnboardingName is the name of the stock onboarding workflow.
const DefaultOnboardingName = "client-onboarding"

// Step IDs of the stock onboarding workflow.
const (
	StepCreateDriveFolder  = "create_drive_folder"
	StepDraftContract      = "draft_contract"
	StepHumanApproval      = "human_approval"
	StepCreateChannel      = "create_communication_channel"
	StepSetupRepository    = "setup_github_repo"
	StepCreateProjectBoard = "create_notion_board"
	StepSendWelcomeEmail   = "send_welcome_email"
	StepSetupBilling       = "setup_billing"
)

// DefaultOnboarding returns the stock eight-step onboarding workflow. The
// contract is drafted and then parked for human review before any external
// workspace is provisioned.
func DefaultOnboarding() *Definition {
	return MustNew(DefaultOnboardingName,
		Step{
			ID:                StepCreateDriveFolder,
			Kind:              KindDriveFolder,
			Name:              "Create Drive Folder",
			Description:       "Create a shared project folder with the standard subfolders",
			EstimatedDuration: 30 * time.Second,
		},
		Step{
			ID:                StepDraftContract,
			Kind:              KindContractDraft,
			Name:              "Draft Contract",
			Description:       "Generate the contract from the project details",
			RequiresApproval:  true,
			EstimatedDuration: 60 * time.Second,
		},
		Step{
			ID:               StepHumanApproval,
			Kind:             KindHumanApproval,
			Name:             "Human Approval",
			Description:      "Wait for a human to review and approve the contract",
			RequiresApproval: true,
		},
		Step{
			ID:                StepCreateChannel,
			Kind:              KindCommunicationChannel,
			Name:              "Create Communication Channel",
			Description:       "Open a dedicated client channel",
			EstimatedDuration: 45 * time.Second,
		},
		Step{
			ID:                StepSetupRepository,
			Kind:              KindRepository,
			Name:              "Setup Repository",
			Description:       "Create the project repository with a starter template",
			EstimatedDuration: 40 * time.Second,
		},
		Step{
			ID:                StepCreateProjectBoard,
			Kind:              KindProjectBoard,
			Name:              "Create Project Board",
			Description:       "Create the project management board",
			EstimatedDuration: 50 * time.Second,
		},
		Step{
			ID:                StepSendWelcomeEmail,
			Kind:              KindWelcomeEmail,
			Name:              "Send Welcome Email",
			Description:       "Send the welcome email with links to every resource",
			EstimatedDuration: 35 * time.Second,
		},
		Step{
			ID:                StepSetupBilling,
			Kind:              KindBilling,
			Name:              "Setup Billing",
			Description:       "Create the billing customer and first invoice",
			EstimatedDuration: 45 * time.Second,
		},
	)
}
