package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// RunSetup asks for the service and identity values and saves them to path.
func RunSetup(current Config, path string) (File, error) {
	apiURL := current.APIURL
	token := current.Token
	name := current.ClientName
	clientID := idString(current.ClientID)
	specialistID := idString(current.SpecialistID)
	age := strconv.Itoa(current.Age)
	useGemini := current.UseGemini

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Endereço do serviço").
				Value(&apiURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Token de acesso").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Seu nome").
				Value(&name),
			huh.NewInput().
				Title("ID do cliente").
				Value(&clientID).
				Validate(validatePositive),
			huh.NewInput().
				Title("ID do especialista").
				Value(&specialistID).
				Validate(validatePositive),
			huh.NewInput().
				Title("Idade").
				Value(&age).
				Validate(validatePositive),
			huh.NewConfirm().
				Title("Usar análise com Gemini?").
				Description("Mais precisa, porém mais lenta.").
				Value(&useGemini),
		),
	)
	if err := form.Run(); err != nil {
		return File{}, fmt.Errorf("setup form: %w", err)
	}

	current.APIURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	current.Token = strings.TrimSpace(token)
	current.ClientName = strings.TrimSpace(name)
	current.ClientID, _ = strconv.ParseInt(strings.TrimSpace(clientID), 10, 64)
	current.SpecialistID, _ = strconv.ParseInt(strings.TrimSpace(specialistID), 10, 64)
	current.Age, _ = strconv.Atoi(strings.TrimSpace(age))
	current.UseGemini = useGemini

	f := FileFrom(current)
	if err := Save(path, f); err != nil {
		return File{}, err
	}
	return f, nil
}

func idString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("use http:// ou https://")
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return fmt.Errorf("informe um número positivo")
	}
	return nil
}
