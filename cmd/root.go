package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainaudit/chainaudit/pkg/app/config"
	"github.com/chainaudit/chainaudit/pkg/app/vars"
	"github.com/chainaudit/chainaudit/pkg/errors"
	"github.com/chainaudit/chainaudit/pkg/logg"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFileName     = "." + vars.Name
	configFileExt      = "yaml"
	configFileBasename = configFileName + "." + configFileExt
	defaultEnvFile     = ".env"
)

var (
	rootCmd = &cobra.Command{
		Use:           vars.Name,
		Short:         vars.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfgFile string
	envFile string
	vpr     *viper.Viper
	initLog logg.Logg
)

func init() {
	initLog = newInitLog()
	cobra.OnInitialize(initConfig)

	initArgs()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		errors.LogErrorThenDie(initLog, errors.WithMessage(err, "unable to execute application"))
	}
}

func initArgs() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(
		&cfgFile,
		"config",
		"",
		fmt.Sprintf("config file (default is $HOME/%s, read only if it exists)", configFileBasename))

	flags.StringVar(
		&envFile,
		"env-file",
		defaultEnvFile,
		"File of KEY=value lines loaded into the environment before reading config.")

	flags.StringP(
		"log-level",
		"l",
		logg.Info.Value(),
		fmt.Sprintf("How detailed should the log be? Valid values: %s.", strings.Join(logg.ValidLevelValues(), ", ")))
}

func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		errors.LogErrorThenDie(initLog, err)
	}

	vpr = config.NewViper()

	// Config file
	configFile := cfgFile
	if configFile == "" {
		configFile = homeConfigFile()
	}
	if configFile != "" {
		if err := config.MergeInConfigFile(vpr, configFile); err != nil {
			errors.LogErrorThenDie(initLog, err)
		}
	}

	// Bind cobra and viper together
	if err := bindFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		errors.LogErrorThenDie(initLog, err)
	}
}

func bindFlag(key string, flag *pflag.Flag) (err error) {
	if err = vpr.BindPFlag(key, flag); err != nil {
		err = errors.Wrapv(err, "unable to bind flag", flag.Name)
	}
	return
}

// Home directory config, or empty if there is none
func homeConfigFile() string {
	hd, err := homedir.Dir()
	if err != nil {
		errors.ErrLog(initLog, err).Warn("unable to find home directory")
		return ""
	}
	configFile := filepath.Join(hd, configFileBasename)
	if _, err := os.Stat(configFile); err != nil {
		return ""
	}
	return configFile
}

// Logger used before config is loaded
func newInitLog() logg.Logg {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return logg.NewLogrusLogg(logger).WithPrefix("init")
}
