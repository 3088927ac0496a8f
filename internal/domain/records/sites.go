package records

// siteNames maps clinical site codes to display names. The clinical source
// only carries the code; the mapping is fixed and maintained here.
var siteNames = map[string]string{
	"SED01": "Sede Central",
	"SED02": "Sede Norte",
	"SED03": "Sede Sur",
	"SED04": "Sede Este",
	"CLI01": "Clinica San Borja",
	"CLI02": "Clinica Miraflores",
	"LAB01": "Laboratorio Central",
	"MOV01": "Unidad Movil 1",
	"MOV02": "Unidad Movil 2",
}

// SiteName resolves a site code to its display name.
// Unknown codes pass through unchanged so nothing is silently dropped.
func SiteName(code string) string {
	if name, ok := siteNames[code]; ok {
		return name
	}
	return code
}
