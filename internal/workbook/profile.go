package workbook

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// profileSettings is the registrymodifications.xcu seeded into the
// throwaway LibreOffice profile. A fresh profile defaults to never
// recalculating OOXML files on load and prompting before updating links,
// so a headless convert would write the stale cached values back.
//
// OOXMLRecalcMode/ODFRecalcMode: 0 always, 1 never, 2 prompt.
// Content/Update/Link: 0 always, 1 never, 2 on request.
const profileSettings = `<?xml version="1.0" encoding="UTF-8"?>
<oor:items xmlns:oor="http://openoffice.org/2001/registry" xmlns:xs="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">
<item oor:path="/org.openoffice.Office.Calc/Formula/Load"><prop oor:name="OOXMLRecalcMode" oor:op="fuse"><value>0</value></prop></item>
<item oor:path="/org.openoffice.Office.Calc/Formula/Load"><prop oor:name="ODFRecalcMode" oor:op="fuse"><value>0</value></prop></item>
<item oor:path="/org.openoffice.Office.Calc/Content/Update"><prop oor:name="Link" oor:op="fuse"><value>0</value></prop></item>
</oor:items>
`

// profileFile is the settings file inside a LibreOffice user installation.
const profileFile = "user/registrymodifications.xcu"

// writeProfile seeds dir as a LibreOffice user installation that
// recalculates formulas and refreshes external links when a workbook opens.
func writeProfile(dir string) error {
	path := filepath.Join(dir, filepath.FromSlash(profileFile))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return eris.Wrap(err, "workbook: create profile dir")
	}
	if err := os.WriteFile(path, []byte(profileSettings), 0o600); err != nil {
		return eris.Wrap(err, "workbook: write profile settings")
	}
	return nil
}
