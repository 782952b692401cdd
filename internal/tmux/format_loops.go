package tmux

import "strings"

// child creates the tree for one loop iteration: same owner client, flags
// and print sink, with its own tag and scope.
func (es *expandState) child(tag uint32) *FormatTree {
	ft := es.ft
	nft := ft.m.NewFormatTree(ft.client, tag, ft.flags)
	nft.print = ft.print
	return nft
}

func (es *expandState) loopSessions(body string) (string, bool) {
	var b strings.Builder
	for _, s := range es.ft.m.sessionsSortedLocked() {
		es.log("session loop: %s", s.IDString())
		nft := es.child(FormatNone)
		nft.Defaults(es.ft.c, s, nil, nil)
		b.WriteString(es.next(nft, 0).expand1(body))
	}
	return b.String(), true
}

// splitActive splits a window or pane loop body into the template used for
// every item and the one used for the active item, if any.
func (es *expandState) splitActive(body string) (all, active string, hasActive bool) {
	all, active, ok := es.choose(body, false)
	if !ok {
		return body, "", false
	}
	return all, active, true
}

func (es *expandState) loopWindows(body string) (string, bool) {
	ft := es.ft
	if ft.s == nil {
		es.log("window loop but no session")
		return "", false
	}
	all, active, hasActive := es.splitActive(body)

	var b strings.Builder
	for _, wl := range ft.s.Windows {
		w := wl.Window
		es.log("window loop: %d %s", wl.Index, w.IDString())
		use := all
		if hasActive && wl == ft.s.Current {
			use = active
		}
		nft := es.child(FormatWindowTag | uint32(w.ID))
		nft.Defaults(ft.c, ft.s, wl, nil)
		b.WriteString(es.next(nft, 0).expand1(use))
	}
	return b.String(), true
}

func (es *expandState) loopPanes(body string) (string, bool) {
	ft := es.ft
	if ft.w == nil {
		es.log("pane loop but no window")
		return "", false
	}
	all, active, hasActive := es.splitActive(body)

	var b strings.Builder
	for _, wp := range ft.w.Panes {
		es.log("pane loop: %s", wp.IDString())
		use := all
		if hasActive && wp == ft.w.Active {
			use = active
		}
		nft := es.child(FormatPaneTag | uint32(wp.ID))
		nft.Defaults(ft.c, ft.s, ft.wl, wp)
		b.WriteString(es.next(nft, 0).expand1(use))
	}
	return b.String(), true
}

func (es *expandState) loopClients(body string) (string, bool) {
	ft := es.ft
	var b strings.Builder
	for _, c := range ft.m.clients {
		es.log("client loop: %s", c.Name)
		nft := ft.m.NewFormatTree(c, FormatNone, ft.flags)
		nft.print = ft.print
		nft.Defaults(c, ft.s, ft.wl, ft.wp)
		b.WriteString(es.next(nft, 0).expand1(body))
	}
	return b.String(), true
}

// windowNameExists reports "1" when a window of the current session has the
// expanded name.
func (es *expandState) windowNameExists(body string) (string, bool) {
	ft := es.ft
	if ft.s == nil {
		es.log("window name but no session")
		return "", false
	}
	name := es.expand1(body)
	for _, wl := range ft.s.Windows {
		if wl.Window.Name == name {
			return "1", true
		}
	}
	return "0", true
}

// sessionNameExists reports "1" when a session has the expanded name.
func (es *expandState) sessionNameExists(body string) (string, bool) {
	name := es.expand1(body)
	for _, s := range es.ft.m.sessions {
		if s.Name == name {
			return "1", true
		}
	}
	return "0", true
}
