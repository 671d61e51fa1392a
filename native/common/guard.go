package common

// CodeModulePaused is reported when governance has paused a module entry point.
const CodeModulePaused Code = "ModulePaused"

var ErrModulePaused = NewError("", CodeModulePaused, "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
