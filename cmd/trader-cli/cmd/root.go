package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "trader-cli",
	Short: "交易机器人钱包离线工具",
	Long: `交易核心的离线配套工具。
支持生成 BIP-39 助记词、派生 ETH 地址以及离线封存/解封私钥文件。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
