package hwc

import (
	"fmt"
	"io"
)

// Dump writes the plan of the last prepared frame as a table, one row per
// app layer.
func (c *Composer) Dump(w io.Writer) {
	f := &c.frame
	fmt.Fprintf(w, "HWC map for display %s (%s, framebuffer %s)\n", c.attrs.ID, c.strategy, c.fbName)
	fmt.Fprintf(w, "CURR_FRAME: layerCount:%2d  hwCount:%2d  fbCount:%2d  fbZ:%2d\n",
		f.LayerCount, f.HWCount, f.FBCount, f.FBZ)
	fmt.Fprintf(w, "needsFBRedraw:%3s  basePipe:%2d  maxPipesPerMixer:%d\n",
		yesNo(f.NeedsRedraw), int(f.BasePipe), c.cfg.MaxPipesPerMixer)
	fmt.Fprintln(w, " -------------------------------------------------------")
	fmt.Fprintln(w, " listIdx | cached? | slot | pipe | comptype |  Z  | rot")
	fmt.Fprintln(w, " -------------------------------------------------------")
	for i := range f.LayerCount {
		z, pipe, rot := f.FBZ, -1, "-"
		if slot, ok := f.SlotOf(i); ok {
			z, pipe = slot.ZOrder, int(slot.Pipe)
			if slot.Rotator != nil {
				rot = "yes"
			}
		}
		fmt.Fprintf(w, " %7d | %7s | %4d | %4d | %8s | %3d | %s\n",
			i, yesNo(!f.IsHardwareComposed(i)), f.layerToSlot[i], pipe, c.Composition(i), z, rot)
	}
	fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
