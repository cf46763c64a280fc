package engine

const (
	TaskDiplomaticHUMINT = "Increase diplomatic and HUMINT monitoring; verify with additional travel data."
	TaskSARImagery       = "Task SAR imagery on key Rocket Force bases and highways; alert cyber team."
	TaskAISMonitor       = "Monitor AIS for further Coast Guard movements; cross-cue SAR for dark ships."
	TaskNOTAMCyber       = "Cross-check with NOTAMs and cyber telemetry; brief analysis section."
	TaskFallback         = "Gather more data and consult analyst."
)

// anyCOA matches every course of action.
const anyCOA = "*"

type taskRule struct {
	pir  int
	coa  string
	task string
}

// Order matters: the first matching rule wins.
var taskRules = []taskRule{
	{pir: 1, coa: "mlcoa", task: TaskDiplomaticHUMINT},
	{pir: 2, coa: "mdcoa", task: TaskSARImagery},
	{pir: 2, coa: "mlcoa", task: TaskAISMonitor},
	{pir: 3, coa: anyCOA, task: TaskNOTAMCyber},
}

func (r taskRule) matches(pir int, coa string) bool {
	if r.pir != pir {
		return false
	}
	return r.coa == anyCOA || r.coa == coa
}

// RecommendTask picks the follow-up tasking for a PIR/COA pair.
func RecommendTask(pir int, coa string) string {
	for _, rule := range taskRules {
		if rule.matches(pir, coa) {
			return rule.task
		}
	}
	return TaskFallback
}
