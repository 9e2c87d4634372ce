package selection

import (
	"github.com/Meerschwein/nixos-healthchecks/pkg/util"
	"github.com/manifoldco/promptui"
)

func ConfirmationDialog(label string) (success bool) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	_, err := prompt.Run()

	success = err == nil

	return
}

func YesNoDialog(label string) (success bool) {
	prompt := promptui.Select{
		Label: label,
		Items: []string{"Yes", "No"},
		Size:  2,
	}

	i, _, err := prompt.Run()
	util.ExitIfErr(err)

	success = i == 0

	return
}
