package workflow

const (
	blockCycleUsers = "cycleUsers"
	actionList      = "list"
)

func plainText(text string) map[string]any {
	return map[string]any{"type": "plain_text", "text": text, "emoji": true}
}

func usersInput(initial []string) map[string]any {
	element := map[string]any{
		"action_id":   actionList,
		"type":        "multi_users_select",
		"placeholder": plainText("Select users"),
	}
	if initial != nil {
		element["initial_users"] = initial
	}
	return map[string]any{
		"type":     "input",
		"block_id": blockCycleUsers,
		"element":  element,
		"label":    plainText("Select the users that can be cycled from:"),
	}
}

func createListModal() map[string]any {
	return map[string]any{
		"type":   "modal",
		"title":  plainText("Create list"),
		"submit": plainText("Submit"),
		"close":  plainText("Cancel"),
		"blocks": []any{usersInput(nil)},
	}
}

func stepConfigView(users []string) map[string]any {
	if users == nil {
		users = []string{}
	}
	return map[string]any{
		"type":   "workflow_step",
		"blocks": []any{usersInput(users)},
	}
}

func stepOutputs() []any {
	return []any{
		map[string]any{
			"name":  OutputAssignedUser,
			"type":  "user",
			"label": "The user assigned in the list",
		},
	}
}
